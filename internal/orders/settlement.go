package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type walletWriter interface {
	ApplyLedgerEffect(ctx context.Context, tx *gorm.DB, effect wallet.Effect) (*models.Transaction, error)
	RecordTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
}

// ReferrerLookup resolves who referred a user, read inside the settling transaction.
type ReferrerLookup interface {
	ReferrerOf(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*uuid.UUID, error)
}

// Settlement is the outcome of one payment cascade.
type Settlement struct {
	Order      *models.Order
	Royalty    decimal.Decimal
	ReferrerID *uuid.UUID
	Commission decimal.Decimal
}

// Settler runs the order payment cascade: mark paid, log the buyer payment,
// deduct the vendor royalty and credit the referrer commission.
type Settler struct {
	repo      Repository
	wallet    walletWriter
	referrers ReferrerLookup
	outbox    outboxPublisher
	rates     config.MarketplaceConfig
	now       func() time.Time
}

// NewSettler wires the payment cascade.
func NewSettler(repo Repository, wallet walletWriter, referrers ReferrerLookup, outbox outboxPublisher, rates config.MarketplaceConfig) (*Settler, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if referrers == nil {
		return nil, fmt.Errorf("referrer lookup required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &Settler{
		repo:      repo,
		wallet:    wallet,
		referrers: referrers,
		outbox:    outbox,
		rates:     rates,
		now:       time.Now,
	}, nil
}

// Royalty returns round2(total x royalty percent).
func (s *Settler) Royalty(total decimal.Decimal) decimal.Decimal {
	return total.Mul(s.rates.RoyaltyPercent).Round(2)
}

// Commission returns round2(royalty x referral percent).
func (s *Settler) Commission(royalty decimal.Decimal) decimal.Decimal {
	return royalty.Mul(s.rates.ReferralPercent).Round(2)
}

// Settle must run inside tx; every write of the cascade shares it.
func (s *Settler) Settle(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, gatewayPaymentID *string) (*Settlement, error) {
	repo := s.repo.WithTx(tx)
	paidAt := s.now().UTC()

	moved, err := repo.MarkPaid(ctx, orderID, gatewayPaymentID, paidAt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !moved {
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"paymentStatus": order.PaymentStatus})
	}

	orderID = order.ID
	if err := s.wallet.RecordTransaction(ctx, tx, &models.Transaction{
		UserID:           order.BuyerID,
		Amount:           order.TotalAmount.Neg(),
		Type:             enums.TransactionOrderPayment,
		Status:           enums.TransactionStatusCompleted,
		BuyerID:          &order.BuyerID,
		VendorID:         &order.VendorID,
		OrderID:          &orderID,
		GatewayPaymentID: gatewayPaymentID,
		Description:      strPtr(string(order.PaymentMethod) + " payment"),
	}); err != nil {
		return nil, err
	}

	result := &Settlement{Order: order, Royalty: s.Royalty(order.TotalAmount)}
	if result.Royalty.IsPositive() {
		if _, err := s.wallet.ApplyLedgerEffect(ctx, tx, wallet.Effect{
			UserID:      order.VendorID,
			Delta:       result.Royalty.Neg(),
			Type:        enums.TransactionRoyaltyDeduction,
			BuyerID:     &order.BuyerID,
			VendorID:    &order.VendorID,
			OrderID:     &orderID,
			Description: "platform royalty",
		}); err != nil {
			return nil, err
		}
	}

	referrer, err := s.referrers.ReferrerOf(ctx, tx, order.BuyerID)
	if err != nil {
		return nil, err
	}
	if referrer != nil {
		result.ReferrerID = referrer
		result.Commission = s.Commission(result.Royalty)
		if result.Commission.IsPositive() {
			if _, err := s.wallet.ApplyLedgerEffect(ctx, tx, wallet.Effect{
				UserID:      *referrer,
				Delta:       result.Commission,
				Type:        enums.TransactionReferralCommission,
				BuyerID:     &order.BuyerID,
				VendorID:    &order.VendorID,
				OrderID:     &orderID,
				Description: "referral commission",
			}); err != nil {
				return nil, err
			}
		}
	}

	event := payloads.OrderPaidEvent{
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		VendorID:         order.VendorID,
		TotalAmount:      order.TotalAmount,
		Royalty:          result.Royalty,
		ReferrerID:       result.ReferrerID,
		GatewayPaymentID: gatewayPaymentID,
		PaidAt:           paidAt,
	}
	if result.ReferrerID != nil {
		commission := result.Commission
		event.ReferralCommission = &commission
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.BuyerID, Role: string(enums.UserRoleBuyer)},
		Data:          event,
		OccurredAt:    paidAt,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func strPtr(value string) *string {
	return &value
}
