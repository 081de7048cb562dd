package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type walletLedger interface {
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ApplyLedgerEffect(ctx context.Context, tx *gorm.DB, effect wallet.Effect) (*models.Transaction, error)
}

// Notifier is told about new bids once they are committed.
type Notifier interface {
	NewQuote(ctx context.Context, buyerID uuid.UUID, quotation *models.Quotation) error
}

// Service handles vendor bids against grocery lists.
type Service interface {
	Submit(ctx context.Context, vendorID uuid.UUID, input SubmitInput) (*QuotationDTO, error)
	Reject(ctx context.Context, buyerID, quotationID uuid.UUID) (*QuotationDTO, error)
	Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, quotationID uuid.UUID) (*QuotationDTO, error)
	List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*QuotationPage, error)
}

// ServiceParams groups the collaborators of the quotation service.
type ServiceParams struct {
	Repo          Repository
	Lists         lists.Repository
	Wallet        walletLedger
	Tx            txRunner
	Outbox        outboxPublisher
	Notifier      Notifier
	BiddingCharge decimal.Decimal
	Logger        *logger.Logger
}

type service struct {
	repo          Repository
	lists         lists.Repository
	wallet        walletLedger
	tx            txRunner
	outbox        outboxPublisher
	notifier      Notifier
	biddingCharge decimal.Decimal
	logg          *logger.Logger
	now           func() time.Time
}

// NewService wires the quotation service. Notifier and Logger may be nil.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quotations repository required")
	}
	if params.Lists == nil {
		return nil, fmt.Errorf("lists repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.BiddingCharge.IsNegative() {
		return nil, fmt.Errorf("bidding charge must not be negative")
	}
	return &service{
		repo:          params.Repo,
		lists:         params.Lists,
		wallet:        params.Wallet,
		tx:            params.Tx,
		outbox:        params.Outbox,
		notifier:      params.Notifier,
		biddingCharge: params.BiddingCharge,
		logg:          params.Logger,
		now:           time.Now,
	}, nil
}

// Submit prices the bid, charges the vendor the flat bidding fee and persists
// both in one transaction. The buyer is notified after commit.
func (s *service) Submit(ctx context.Context, vendorID uuid.UUID, input SubmitInput) (*QuotationDTO, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "vendor id required")
	}
	if input.ListID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listId is required")
	}
	if input.ValidUntil != nil && !input.ValidUntil.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validUntil must be in the future")
	}

	list, err := s.loadList(ctx, s.lists, input.ListID)
	if err != nil {
		return nil, err
	}
	if list.Status != enums.ListStatusOpen {
		return nil, lists.Closed()
	}

	priced, err := Price(input.Prices)
	if err != nil {
		return nil, err
	}

	if s.biddingCharge.IsPositive() {
		balance, err := s.wallet.Balance(ctx, vendorID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(s.biddingCharge) {
			return nil, wallet.InsufficientBalance(s.biddingCharge, balance)
		}
	}

	quotation := &models.Quotation{
		ListID:        list.ID,
		VendorID:      vendorID,
		TotalAmount:   priced.Total,
		DiscountTotal: priced.DiscountTotal,
		Status:        enums.QuotationStatusPending,
		ValidUntil:    input.ValidUntil,
		Notes:         trimmed(input.Notes),
		Prices:        priced.Lines,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.loadList(ctx, s.lists.WithTx(tx), list.ID)
		if err != nil {
			return err
		}
		if current.Status != enums.ListStatusOpen {
			return lists.Closed()
		}
		if err := s.repo.WithTx(tx).Create(ctx, quotation); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create quotation")
		}
		if s.biddingCharge.IsPositive() {
			if _, err := s.wallet.ApplyLedgerEffect(ctx, tx, wallet.Effect{
				UserID:      vendorID,
				Delta:       s.biddingCharge.Neg(),
				Type:        enums.TransactionBiddingCharge,
				Guarded:     true,
				BuyerID:     &list.BuyerID,
				VendorID:    &vendorID,
				ReferenceID: &quotation.ID,
				Description: "bidding charge for list " + list.ID.String(),
			}); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQuotationSubmitted,
			AggregateType: enums.AggregateQuotation,
			AggregateID:   quotation.ID,
			Actor:         &outbox.ActorRef{UserID: vendorID, Role: string(enums.UserRoleVendor)},
			Data: payloads.QuotationSubmittedEvent{
				QuotationID:   quotation.ID,
				ListID:        list.ID,
				BuyerID:       list.BuyerID,
				VendorID:      vendorID,
				TotalAmount:   quotation.TotalAmount,
				BiddingCharge: s.biddingCharge,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NewQuote(ctx, list.BuyerID, quotation); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithError(ctx, err), "new_quote notification failed")
		}
	}
	return FromModel(quotation), nil
}

// Reject lets the list owner decline a pending bid. The bidding charge is not refunded.
func (s *service) Reject(ctx context.Context, buyerID, quotationID uuid.UUID) (*QuotationDTO, error) {
	quotation, err := s.loadQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	list, err := s.loadList(ctx, s.lists, quotation.ListID)
	if err != nil {
		return nil, err
	}
	if list.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "quotation belongs to another buyer's list")
	}

	moved, err := s.repo.Transition(ctx, quotation.ID, enums.QuotationStatusPending, enums.QuotationStatusRejected)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject quotation")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quotation is not pending").
			WithDetails(map[string]any{"status": quotation.Status})
	}
	quotation.Status = enums.QuotationStatusRejected
	return FromModel(quotation), nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID, role enums.UserRole, quotationID uuid.UUID) (*QuotationDTO, error) {
	quotation, err := s.loadQuotation(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	switch role {
	case enums.UserRoleAdmin:
	case enums.UserRoleVendor:
		if quotation.VendorID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quotation not found")
		}
	case enums.UserRoleBuyer:
		list, err := s.loadList(ctx, s.lists, quotation.ListID)
		if err != nil {
			return nil, err
		}
		if list.BuyerID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quotation not found")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}
	return FromModel(quotation), nil
}

// List scopes results by role: vendors see their own bids, buyers see bids on
// their lists, admins see everything.
func (s *service) List(ctx context.Context, userID uuid.UUID, role enums.UserRole, params ListParams) (*QuotationPage, error) {
	query := ListQuery{ListID: params.ListID, Status: params.Status, Limit: params.Limit}
	switch role {
	case enums.UserRoleVendor:
		query.VendorID = &userID
	case enums.UserRoleBuyer:
		query.BuyerID = &userID
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotations")
	}
	page, next := pagination.Page(rows, params.Limit, func(q models.Quotation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: q.CreatedAt, ID: q.ID}
	})
	out := make([]QuotationDTO, 0, len(page))
	for i := range page {
		out = append(out, *FromModel(&page[i]))
	}
	return &QuotationPage{Quotations: out, NextCursor: next}, nil
}

func (s *service) loadQuotation(ctx context.Context, id uuid.UUID) (*models.Quotation, error) {
	quotation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quotation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load quotation")
	}
	return quotation, nil
}

func (s *service) loadList(ctx context.Context, repo lists.Repository, id uuid.UUID) (*models.GroceryList, error) {
	list, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, lists.NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load list")
	}
	return list, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
