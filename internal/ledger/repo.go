package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound is returned when an increment targets a missing user.
	ErrUserNotFound = errors.New("ledger: user not found")
	// ErrBalanceGuard is returned when a guarded increment would overdraw the wallet.
	ErrBalanceGuard = errors.New("ledger: balance guard rejected increment")
)

// Repository persists wallet balances and the append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	IncrementBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, guarded bool) (decimal.Decimal, error)
	IncrementRewards(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error
	DrainRewards(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Transaction, error)
	CompletePending(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error)
	FailPendingBefore(ctx context.Context, txType enums.TransactionType, cutoff time.Time) (int64, error)
	ListByUser(ctx context.Context, params ListParams) ([]models.Transaction, error)
}

// ListParams filters transaction history. A nil UserID lists every user.
type ListParams struct {
	UserID *uuid.UUID
	Type   *enums.TransactionType
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("id", "wallet_balance").
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return user.WalletBalance, nil
}

// IncrementBalance adds delta in a single UPDATE. When guarded, the row only
// changes if the resulting balance stays non-negative.
func (r *repository) IncrementBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, guarded bool) (decimal.Decimal, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID)
	if guarded {
		query = query.Where("wallet_balance + ? >= 0", delta)
	}
	result := query.UpdateColumn("wallet_balance", gorm.Expr("wallet_balance + ?", delta))
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Balance(ctx, userID); err != nil {
			return decimal.Zero, err
		}
		return decimal.Zero, ErrBalanceGuard
	}
	return r.Balance(ctx, userID)
}

func (r *repository) IncrementRewards(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("referral_rewards", gorm.Expr("referral_rewards + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DrainRewards moves every reward point into the wallet and returns the amount
// moved. Zero means there was nothing to convert.
func (r *repository) DrainRewards(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "referral_rewards").
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	rewards := user.ReferralRewards
	if !rewards.IsPositive() {
		return decimal.Zero, nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND referral_rewards >= ?", userID, rewards).
		UpdateColumns(map[string]any{
			"wallet_balance":   gorm.Expr("wallet_balance + ?", rewards),
			"referral_rewards": gorm.Expr("referral_rewards - ?", rewards),
		})
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, nil
	}
	return rewards, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// CompletePending flips pending -> completed. False means another caller got there first.
func (r *repository) CompletePending(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		UpdateColumns(map[string]any{
			"status":             enums.TransactionStatusCompleted,
			"gateway_payment_id": gatewayPaymentID,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FailPendingBefore(ctx context.Context, txType enums.TransactionType, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("type = ? AND status = ? AND created_at < ?", txType, enums.TransactionStatusPending, cutoff).
		UpdateColumns(map[string]any{
			"status":     enums.TransactionStatusFailed,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListByUser returns up to LimitWithBuffer rows, newest first.
func (r *repository) ListByUser(ctx context.Context, params ListParams) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}

	var rows []models.Transaction
	if err := query.
		Scopes(pagination.Keyset("", params.Cursor, params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
