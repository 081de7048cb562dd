package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/quotations"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settler interface {
	Settle(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, gatewayPaymentID *string) (*Settlement, error)
}

// Service defines order lifecycle operations.
type Service interface {
	AcceptQuotation(ctx context.Context, buyerID uuid.UUID, input AcceptInput) (*OrderDTO, error)
	UpdateDeliveryStatus(ctx context.Context, actorID uuid.UUID, role enums.UserRole, orderID uuid.UUID, input DeliveryInput) (*OrderDTO, error)
	MarkPaid(ctx context.Context, actorID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderDTO, error)
	Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*OrderPage, error)
}

// ServiceParams groups the collaborators of the order service.
type ServiceParams struct {
	Repo       Repository
	Lists      lists.Repository
	Quotations quotations.Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Settler    settler
	// StrictDelivery rejects delivery moves that do not advance the status.
	StrictDelivery bool
	Logger         *logger.Logger
}

type service struct {
	repo           Repository
	lists          lists.Repository
	quotations     quotations.Repository
	tx             txRunner
	outbox         outboxPublisher
	settler        settler
	strictDelivery bool
	logg           *logger.Logger
	now            func() time.Time
}

// NewService wires the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Lists == nil {
		return nil, fmt.Errorf("lists repository required")
	}
	if params.Quotations == nil {
		return nil, fmt.Errorf("quotations repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	return &service{
		repo:           params.Repo,
		lists:          params.Lists,
		quotations:     params.Quotations,
		tx:             params.Tx,
		outbox:         params.Outbox,
		settler:        params.Settler,
		strictDelivery: params.StrictDelivery,
		logg:           params.Logger,
		now:            time.Now,
	}, nil
}

// NotFound is the 404 returned for missing or hidden orders.
func NotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

// AcceptQuotation closes the list, accepts the bid and creates the order in
// one transaction. A list can only be closed once, so a second accept fails.
func (s *service) AcceptQuotation(ctx context.Context, buyerID uuid.UUID, input AcceptInput) (*OrderDTO, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer id required")
	}
	if input.QuotationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quotationId is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"paymentMethod": input.PaymentMethod})
	}

	quotation, err := s.quotations.FindByID(ctx, input.QuotationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quotation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quotation")
	}
	list, err := s.lists.FindByID(ctx, quotation.ListID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lists.NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load list")
	}
	if list.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the list owner can accept a quotation")
	}

	order := &models.Order{
		QuotationID:    quotation.ID,
		ListID:         list.ID,
		BuyerID:        buyerID,
		VendorID:       quotation.VendorID,
		TotalAmount:    quotation.TotalAmount,
		PaymentMethod:  input.PaymentMethod,
		PaymentStatus:  enums.PaymentStatusPending,
		DeliveryStatus: enums.DeliveryStatusPending,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		closed, err := s.lists.WithTx(tx).CloseIfOpen(ctx, list.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close list")
		}
		if !closed {
			return lists.Closed()
		}

		moved, err := s.quotations.WithTx(tx).Transition(ctx, quotation.ID, enums.QuotationStatusPending, enums.QuotationStatusAccepted)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accept quotation")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "quotation is not pending").
				WithDetails(map[string]any{"status": quotation.Status})
		}

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already exists for quotation")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: buyerID, Role: string(enums.UserRoleBuyer)},
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				QuotationID:   quotation.ID,
				ListID:        list.ID,
				BuyerID:       buyerID,
				VendorID:      quotation.VendorID,
				TotalAmount:   order.TotalAmount,
				PaymentMethod: order.PaymentMethod,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":     order.ID.String(),
			"quotation_id": quotation.ID.String(),
		})
		s.logg.Info(logCtx, "quotation accepted")
	}
	return FromModel(order), nil
}

func (s *service) UpdateDeliveryStatus(ctx context.Context, actorID uuid.UUID, role enums.UserRole, orderID uuid.UUID, input DeliveryInput) (*OrderDTO, error) {
	if role != enums.UserRoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can update delivery status")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status").
			WithDetails(map[string]any{"status": input.Status})
	}

	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another vendor")
	}
	from := order.DeliveryStatus
	if s.strictDelivery && !from.CanAdvanceTo(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "delivery status cannot move backwards").
			WithDetails(map[string]any{"from": from, "to": input.Status})
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		moved, err := repo.MoveDelivery(ctx, order.ID, from, input.Status, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeConflict, "delivery status changed concurrently")
		}
		updated, err = s.load(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryStatusMoved,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
			Data: payloads.DeliveryStatusChangedEvent{
				OrderID:  order.ID,
				BuyerID:  order.BuyerID,
				VendorID: order.VendorID,
				From:     from,
				To:       input.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// MarkPaid settles a cash-on-delivery order. Online orders settle through
// payment verification instead.
func (s *service) MarkPaid(ctx context.Context, actorID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderDTO, error) {
	if role != enums.UserRoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only buyers can mark orders paid")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	if order.PaymentMethod != enums.PaymentMethodCOD {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "online orders are paid through the payment gateway")
	}

	var settled *Settlement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		settled, err = s.settler.Settle(ctx, tx, order.ID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(settled.Order), nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	switch role {
	case enums.UserRoleAdmin:
	case enums.UserRoleBuyer:
		if order.BuyerID != userID {
			return nil, NotFound()
		}
	case enums.UserRoleVendor:
		if order.VendorID != userID {
			return nil, NotFound()
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}
	return FromModel(order), nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*OrderPage, error) {
	query := ListQuery{
		PaymentStatus:  params.PaymentStatus,
		DeliveryStatus: params.DeliveryStatus,
		Limit:          params.Limit,
	}
	switch role {
	case enums.UserRoleBuyer:
		query.BuyerID = &userID
	case enums.UserRoleVendor:
		query.VendorID = &userID
	case enums.UserRoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	out := make([]OrderDTO, 0, len(page))
	for i := range page {
		out = append(out, *FromModel(&page[i]))
	}
	return &OrderPage{Orders: out, NextCursor: next}, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
