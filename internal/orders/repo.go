package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists orders. Every state change is a conditional update.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	AttachGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID *string, paidAt time.Time) (bool, error)
	MoveDelivery(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStatus, at time.Time) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.Order, error)
}

// ListQuery narrows an order scan.
type ListQuery struct {
	BuyerID        *uuid.UUID
	VendorID       *uuid.UUID
	PaymentStatus  *enums.PaymentStatus
	DeliveryStatus *enums.DeliveryStatus
	Limit          int
	Cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// AttachGatewayOrder records the hosted checkout id while payment is pending.
func (r *repository) AttachGatewayOrder(ctx context.Context, id uuid.UUID, gatewayOrderID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(map[string]any{
			"gateway_order_id": gatewayOrderID,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkPaid flips pending -> paid. False means the order was not pending.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID *string, paidAt time.Time) (bool, error) {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        paidAt,
		"updated_at":     paidAt,
	}
	if gatewayPaymentID != nil {
		updates["gateway_payment_id"] = *gatewayPaymentID
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, enums.PaymentStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MoveDelivery changes delivery_status only if it still equals from.
func (r *repository) MoveDelivery(ctx context.Context, id uuid.UUID, from, to enums.DeliveryStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"delivery_status": to,
		"updated_at":      at,
	}
	if to == enums.DeliveryStatusDelivered {
		updates["delivered_at"] = at
	}
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND delivery_status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Order, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if query.BuyerID != nil {
		q = q.Where("buyer_id = ?", *query.BuyerID)
	}
	if query.VendorID != nil {
		q = q.Where("vendor_id = ?", *query.VendorID)
	}
	if query.PaymentStatus != nil {
		q = q.Where("payment_status = ?", *query.PaymentStatus)
	}
	if query.DeliveryStatus != nil {
		q = q.Where("delivery_status = ?", *query.DeliveryStatus)
	}

	var rows []models.Order
	err := q.Scopes(pagination.Keyset("", query.Cursor, query.Limit)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
