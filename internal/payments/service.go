package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/grocerybid-backend/internal/orders"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
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

type settler interface {
	Settle(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, gatewayPaymentID *string) (*orders.Settlement, error)
}

type rechargeLedger interface {
	RecordTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	FindRecharge(ctx context.Context, gatewayOrderID string) (*models.Transaction, error)
	CompletePendingRecharge(ctx context.Context, tx *gorm.DB, gatewayOrderID, gatewayPaymentID string) (*models.Transaction, decimal.Decimal, error)
}

// Service opens hosted checkouts and settles them once the client returns a
// signed payment.
type Service interface {
	CreateOrderPayment(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*CheckoutDTO, error)
	VerifyOrderPayment(ctx context.Context, buyerID uuid.UUID, input VerifyInput) (*OrderPaymentResult, error)
	CreateRecharge(ctx context.Context, userID uuid.UUID, input RechargeInput) (*CheckoutDTO, error)
	VerifyRecharge(ctx context.Context, userID uuid.UUID, input VerifyInput) (*RechargeResult, error)
}

// ServiceParams groups the collaborators of the payments service.
type ServiceParams struct {
	Gateway     Gateway
	Verifier    *Verifier
	Orders      orders.Repository
	Settler     settler
	Wallet      rechargeLedger
	Tx          txRunner
	Outbox      outboxPublisher
	MinRecharge decimal.Decimal
	Logger      *logger.Logger
}

type service struct {
	gateway     Gateway
	verifier    *Verifier
	orders      orders.Repository
	settler     settler
	wallet      rechargeLedger
	tx          txRunner
	outbox      outboxPublisher
	minRecharge decimal.Decimal
	logg        *logger.Logger
}

// NewService wires the payments service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("signature verifier required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Settler == nil:
		return nil, fmt.Errorf("settler required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		gateway:     params.Gateway,
		verifier:    params.Verifier,
		orders:      params.Orders,
		settler:     params.Settler,
		wallet:      params.Wallet,
		tx:          params.Tx,
		outbox:      params.Outbox,
		minRecharge: params.MinRecharge,
		logg:        params.Logger,
	}, nil
}

func (s *service) CreateOrderPayment(ctx context.Context, buyerID uuid.UUID, input CreateOrderInput) (*CheckoutDTO, error) {
	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}
	if order.PaymentMethod != enums.PaymentMethodOnline {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cash on delivery orders are marked paid by the buyer")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}

	gwOrder, err := s.openCheckout(ctx, GatewayOrderRequest{
		Amount:  order.TotalAmount,
		Receipt: "order_" + order.ID.String()[:8],
		Notes:   map[string]string{"orderId": order.ID.String(), "buyerId": buyerID.String()},
	})
	if err != nil {
		return nil, err
	}

	attached, err := s.orders.AttachGatewayOrder(ctx, order.ID, gwOrder.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach gateway order")
	}
	if !attached {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}

	orderID := order.ID
	return &CheckoutDTO{
		GatewayOrderID: gwOrder.ID,
		Amount:         types.NewMoney(order.TotalAmount),
		Currency:       gwOrder.Currency,
		KeyID:          s.gateway.KeyID(),
		Mock:           s.verifier.IsMock(gwOrder.ID),
		OrderID:        &orderID,
	}, nil
}

// VerifyOrderPayment checks the signature before touching any row, then runs
// the settlement cascade in one transaction.
func (s *service) VerifyOrderPayment(ctx context.Context, buyerID uuid.UUID, input VerifyInput) (*OrderPaymentResult, error) {
	if err := s.verifier.Verify(input.GatewayOrderID, input.GatewayPaymentID, input.Signature); err != nil {
		return nil, err
	}

	order, err := s.orders.FindByGatewayOrderID(ctx, input.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orders.NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.OrderID != nil && *input.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId does not match the gateway order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another buyer")
	}

	paymentID := input.GatewayPaymentID
	var settled *orders.Settlement
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		settled, err = s.settler.Settle(ctx, tx, order.ID, &paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, "order payment verified", map[string]any{
		"order_id":           order.ID.String(),
		"gateway_payment_id": paymentID,
		"royalty":            settled.Royalty.StringFixed(2),
	})
	result := &OrderPaymentResult{
		Order:   orders.FromModel(settled.Order),
		Royalty: types.NewMoney(settled.Royalty),
	}
	if settled.ReferrerID != nil {
		commission := types.NewMoney(settled.Commission)
		result.ReferralCommission = &commission
	}
	return result, nil
}

// CreateRecharge opens a checkout and records a pending deposit carrying the
// gateway order id. The wallet is credited only by VerifyRecharge.
func (s *service) CreateRecharge(ctx context.Context, userID uuid.UUID, input RechargeInput) (*CheckoutDTO, error) {
	if !input.Amount.Present || !input.Amount.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount is required")
	}
	amount := input.Amount.Value.Round(2)
	if !amount.IsPositive() || amount.LessThan(s.minRecharge) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount below minimum recharge").
			WithDetails(map[string]any{"minimum": s.minRecharge.StringFixed(2)})
	}

	gwOrder, err := s.openCheckout(ctx, GatewayOrderRequest{
		Amount:  amount,
		Receipt: "recharge_" + userID.String()[:8],
		Notes:   map[string]string{"userId": userID.String(), "purpose": "wallet_recharge"},
	})
	if err != nil {
		return nil, err
	}

	gatewayOrderID := gwOrder.ID
	description := "wallet recharge"
	txn := &models.Transaction{
		UserID:         userID,
		Amount:         amount,
		Type:           enums.TransactionDeposit,
		Status:         enums.TransactionStatusPending,
		GatewayOrderID: &gatewayOrderID,
		Description:    &description,
	}
	if err := s.wallet.RecordTransaction(ctx, nil, txn); err != nil {
		return nil, err
	}

	return &CheckoutDTO{
		GatewayOrderID: gwOrder.ID,
		Amount:         types.NewMoney(amount),
		Currency:       gwOrder.Currency,
		KeyID:          s.gateway.KeyID(),
		Mock:           s.verifier.IsMock(gwOrder.ID),
		TransactionID:  &txn.ID,
	}, nil
}

// VerifyRecharge credits a pending deposit exactly once.
func (s *service) VerifyRecharge(ctx context.Context, userID uuid.UUID, input VerifyInput) (*RechargeResult, error) {
	if err := s.verifier.Verify(input.GatewayOrderID, input.GatewayPaymentID, input.Signature); err != nil {
		return nil, err
	}

	pending, err := s.wallet.FindRecharge(ctx, input.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if pending.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "recharge belongs to another user")
	}

	var (
		credited *models.Transaction
		balance  decimal.Decimal
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		credited, balance, err = s.wallet.CompletePendingRecharge(ctx, tx, input.GatewayOrderID, input.GatewayPaymentID)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletRecharged,
			AggregateType: enums.AggregateTransaction,
			AggregateID:   credited.ID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.WalletRechargedEvent{
				TransactionID:    credited.ID,
				UserID:           userID,
				Amount:           credited.Amount,
				GatewayOrderID:   input.GatewayOrderID,
				GatewayPaymentID: input.GatewayPaymentID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, "wallet recharge credited", map[string]any{
		"transaction_id": credited.ID.String(),
		"amount":         credited.Amount.StringFixed(2),
	})
	return &RechargeResult{
		Transaction: wallet.FromModel(credited),
		Balance:     types.NewMoney(balance),
	}, nil
}

func (s *service) openCheckout(ctx context.Context, req GatewayOrderRequest) (*GatewayOrder, error) {
	gwOrder, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "gateway create order failed", err)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gateway order")
	}
	return gwOrder, nil
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orders.NotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) info(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
