package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
)

const defaultRechargeExpiry = 24 * time.Hour

type RechargeExpiryJobParams struct {
	Logger *logger.Logger
	Ledger pendingRechargeExpirer
	Expiry time.Duration
}

type pendingRechargeExpirer interface {
	FailPendingBefore(ctx context.Context, txType enums.TransactionType, cutoff time.Time) (int64, error)
}

// NewRechargeExpiryJob fails wallet recharges that were never verified.
// A failed row can no longer be completed, so a late verify cannot credit it.
func NewRechargeExpiryJob(params RechargeExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = defaultRechargeExpiry
	}
	return &rechargeExpiryJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		expiry: expiry,
		now:    time.Now,
	}, nil
}

type rechargeExpiryJob struct {
	logg   *logger.Logger
	ledger pendingRechargeExpirer
	expiry time.Duration
	now    func() time.Time
}

func (j *rechargeExpiryJob) Name() string { return "recharge-expiry" }

func (j *rechargeExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.expiry)
	failed, err := j.ledger.FailPendingBefore(ctx, enums.TransactionDeposit, cutoff)
	if err != nil {
		return fmt.Errorf("expire pending recharges: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_expired": failed,
	})
	j.logg.Info(logCtx, "pending recharge expiry complete")
	return nil
}
