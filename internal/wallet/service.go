package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/grocerybid-backend/internal/ledger"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/grocerybid-backend/pkg/errors"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/angelmondragon/grocerybid-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Effect describes one signed change to a user's wallet.
type Effect struct {
	UserID uuid.UUID
	Delta  decimal.Decimal
	Type   enums.TransactionType
	// Guarded rejects the effect when it would leave the balance negative.
	Guarded     bool
	BuyerID     *uuid.UUID
	VendorID    *uuid.UUID
	OrderID     *uuid.UUID
	ReferenceID *uuid.UUID
	Description string
}

type effectMetrics interface {
	ObserveEffect(txType string, delta decimal.Decimal)
	IncDenied(txType string)
}

// Service is the only writer of wallet_balance and referral_rewards.
type Service interface {
	ApplyLedgerEffect(ctx context.Context, tx *gorm.DB, effect Effect) (*models.Transaction, error)
	RecordTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error
	CompletePendingRecharge(ctx context.Context, tx *gorm.DB, gatewayOrderID, gatewayPaymentID string) (*models.Transaction, decimal.Decimal, error)
	FindRecharge(ctx context.Context, gatewayOrderID string) (*models.Transaction, error)
	GrantRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points decimal.Decimal) error
	ConvertRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Transaction, decimal.Decimal, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResult, error)
	ListAll(ctx context.Context, params ListAllParams) (*TransactionPage, error)
}

type service struct {
	repo    ledger.Repository
	metrics effectMetrics
}

// NewService wires the wallet service. metrics may be nil.
func NewService(repo ledger.Repository, metrics effectMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, metrics: metrics}, nil
}

// InsufficientBalance builds the 400 returned when a guarded debit cannot be covered.
func InsufficientBalance(required, available decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient wallet balance").
		WithDetails(map[string]any{
			"required":  required.StringFixed(2),
			"available": available.StringFixed(2),
		})
}

// ApplyLedgerEffect increments the balance and appends exactly one completed
// transaction mirroring delta. Both writes share tx.
func (s *service) ApplyLedgerEffect(ctx context.Context, tx *gorm.DB, effect Effect) (*models.Transaction, error) {
	if effect.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !effect.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", effect.Type))
	}
	if effect.Delta.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger effect amount must be non-zero")
	}

	repo := s.repo.WithTx(tx)
	if _, err := repo.IncrementBalance(ctx, effect.UserID, effect.Delta, effect.Guarded); err != nil {
		switch {
		case errors.Is(err, ledger.ErrBalanceGuard):
			s.denied(effect.Type)
			available, balErr := repo.Balance(ctx, effect.UserID)
			if balErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, balErr, "read wallet balance")
			}
			return nil, InsufficientBalance(effect.Delta.Neg(), available)
		case errors.Is(err, ledger.ErrUserNotFound):
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
		}
	}

	txn := &models.Transaction{
		UserID:      effect.UserID,
		Amount:      effect.Delta,
		Type:        effect.Type,
		Status:      enums.TransactionStatusCompleted,
		BuyerID:     effect.BuyerID,
		VendorID:    effect.VendorID,
		OrderID:     effect.OrderID,
		ReferenceID: effect.ReferenceID,
		Description: optionalString(effect.Description),
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	if s.metrics != nil {
		s.metrics.ObserveEffect(string(effect.Type), effect.Delta)
	}
	return txn, nil
}

// RecordTransaction appends a row without touching the balance. Used for
// pending recharges and audit rows that describe points or external money.
func (s *service) RecordTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction) error {
	if txn == nil || txn.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction user is required")
	}
	if !txn.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", txn.Type))
	}
	if txn.Status == "" {
		txn.Status = enums.TransactionStatusCompleted
	}
	if err := s.repo.WithTx(tx).CreateTransaction(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return nil
}

func (s *service) FindRecharge(ctx context.Context, gatewayOrderID string) (*models.Transaction, error) {
	return findRecharge(ctx, s.repo, gatewayOrderID)
}

func findRecharge(ctx context.Context, repo ledger.Repository, gatewayOrderID string) (*models.Transaction, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id is required")
	}
	txn, err := repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recharge not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recharge")
	}
	if txn.Type != enums.TransactionDeposit {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recharge not found")
	}
	return txn, nil
}

// CompletePendingRecharge flips the pending deposit to completed and credits
// its stored amount. A second call for the same gateway order is rejected.
func (s *service) CompletePendingRecharge(ctx context.Context, tx *gorm.DB, gatewayOrderID, gatewayPaymentID string) (*models.Transaction, decimal.Decimal, error) {
	if strings.TrimSpace(gatewayPaymentID) == "" {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id is required")
	}
	repo := s.repo.WithTx(tx)
	txn, err := findRecharge(ctx, repo, gatewayOrderID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	switch txn.Status {
	case enums.TransactionStatusCompleted:
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeConflict, "recharge already credited")
	case enums.TransactionStatusFailed:
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeStateConflict, "recharge expired").
			WithDetails(map[string]any{"status": txn.Status})
	}

	flipped, err := repo.CompletePending(ctx, txn.ID, gatewayPaymentID)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete recharge")
	}
	if !flipped {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeConflict, "recharge already credited")
	}

	balance, err := repo.IncrementBalance(ctx, txn.UserID, txn.Amount, false)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit recharge")
	}
	if s.metrics != nil {
		s.metrics.ObserveEffect(string(txn.Type), txn.Amount)
	}

	txn.Status = enums.TransactionStatusCompleted
	paymentID := gatewayPaymentID
	txn.GatewayPaymentID = &paymentID
	return txn, balance, nil
}

func (s *service) GrantRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points decimal.Decimal) error {
	if !points.IsPositive() {
		return nil
	}
	if err := s.repo.WithTx(tx).IncrementRewards(ctx, userID, points); err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant referral rewards")
	}
	return nil
}

// ConvertRewards moves every reward point into the wallet and logs a deposit.
func (s *service) ConvertRewards(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Transaction, decimal.Decimal, error) {
	repo := s.repo.WithTx(tx)
	moved, err := repo.DrainRewards(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert rewards")
	}
	if !moved.IsPositive() {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "no rewards available to convert")
	}

	txn := &models.Transaction{
		UserID:      userID,
		Amount:      moved,
		Type:        enums.TransactionDeposit,
		Status:      enums.TransactionStatusCompleted,
		Description: optionalString("referral rewards converted"),
	}
	if err := repo.CreateTransaction(ctx, txn); err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record conversion")
	}
	if s.metrics != nil {
		s.metrics.ObserveEffect(string(txn.Type), moved)
	}

	balance, err := repo.Balance(ctx, userID)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read wallet balance")
	}
	return txn, balance, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read wallet balance")
	}
	return balance, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*HistoryResult, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.list(ctx, ledger.ListParams{UserID: &userID, Limit: params.Limit}, params.Cursor)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{
		Balance:      types.NewMoney(balance),
		Transactions: FromModels(rows),
		NextCursor:   next,
	}, nil
}

func (s *service) ListAll(ctx context.Context, params ListAllParams) (*TransactionPage, error) {
	rows, next, err := s.list(ctx, ledger.ListParams{UserID: params.UserID, Type: params.Type, Limit: params.Limit}, params.Cursor)
	if err != nil {
		return nil, err
	}
	return &TransactionPage{Transactions: FromModels(rows), NextCursor: next}, nil
}

func (s *service) list(ctx context.Context, query ledger.ListParams, rawCursor string) ([]models.Transaction, string, error) {
	if rawCursor != "" {
		cursor, err := pagination.ParseCursor(rawCursor)
		if err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, err := s.repo.ListByUser(ctx, query)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page, next := pagination.Page(rows, query.Limit, func(t models.Transaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
	})
	return page, next, nil
}

func (s *service) denied(txType enums.TransactionType) {
	if s.metrics != nil {
		s.metrics.IncDenied(string(txType))
	}
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
