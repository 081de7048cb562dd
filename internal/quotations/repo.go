package quotations

import (
	"context"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists quotations and their price lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, quotation *models.Quotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Quotation, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.QuotationStatus) (bool, error)
	List(ctx context.Context, query ListQuery) ([]models.Quotation, error)
}

// ListQuery narrows a quotation scan. BuyerID filters through the owning list.
type ListQuery struct {
	VendorID *uuid.UUID
	BuyerID  *uuid.UUID
	ListID   *uuid.UUID
	Status   *enums.QuotationStatus
	Limit    int
	Cursor   *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a quotations repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, quotation *models.Quotation) error {
	return r.db.WithContext(ctx).Create(quotation).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Quotation, error) {
	var quotation models.Quotation
	err := r.db.WithContext(ctx).
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&quotation).Error
	if err != nil {
		return nil, err
	}
	return &quotation, nil
}

// Transition moves a quotation between states only when it is still in from.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.QuotationStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Quotation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Quotation, error) {
	q := r.db.WithContext(ctx).Model(&models.Quotation{})
	if query.VendorID != nil {
		q = q.Where("quotations.vendor_id = ?", *query.VendorID)
	}
	if query.BuyerID != nil {
		q = q.Joins("JOIN grocery_lists ON grocery_lists.id = quotations.list_id").
			Where("grocery_lists.buyer_id = ?", *query.BuyerID)
	}
	if query.ListID != nil {
		q = q.Where("quotations.list_id = ?", *query.ListID)
	}
	if query.Status != nil {
		q = q.Where("quotations.status = ?", *query.Status)
	}

	var rows []models.Quotation
	err := q.
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Scopes(pagination.Keyset("quotations", query.Cursor, query.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
