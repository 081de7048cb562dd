package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
)

type fakeRechargeLedger struct {
	txType enums.TransactionType
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeRechargeLedger) FailPendingBefore(_ context.Context, txType enums.TransactionType, cutoff time.Time) (int64, error) {
	f.calls++
	f.txType = txType
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func newRechargeExpiryJob(t *testing.T, ledger *fakeRechargeLedger, expiry time.Duration) *rechargeExpiryJob {
	t.Helper()
	jobIface, err := NewRechargeExpiryJob(RechargeExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Ledger: ledger,
		Expiry: expiry,
	})
	if err != nil {
		t.Fatalf("NewRechargeExpiryJob: %v", err)
	}
	job, ok := jobIface.(*rechargeExpiryJob)
	if !ok {
		t.Fatalf("expected rechargeExpiryJob, got %T", jobIface)
	}
	return job
}

func TestRechargeExpiryJobFailsStaleDeposits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := &fakeRechargeLedger{}
	job := newRechargeExpiryJob(t, ledger, 2*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ledger.calls != 1 {
		t.Fatalf("expected one call, got %d", ledger.calls)
	}
	if ledger.txType != enums.TransactionDeposit {
		t.Fatalf("expected deposit rows, got %s", ledger.txType)
	}
	if want := now.Add(-2 * time.Hour); !ledger.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, ledger.cutoff)
	}
}

func TestRechargeExpiryJobDefaultsWindow(t *testing.T) {
	job := newRechargeExpiryJob(t, &fakeRechargeLedger{}, 0)
	if job.expiry != defaultRechargeExpiry {
		t.Fatalf("expected default expiry, got %s", job.expiry)
	}
}

func TestRechargeExpiryJobPropagatesError(t *testing.T) {
	job := newRechargeExpiryJob(t, &fakeRechargeLedger{err: errors.New("db down")}, time.Hour)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRechargeExpiryJobRequiresLedger(t *testing.T) {
	_, err := NewRechargeExpiryJob(RechargeExpiryJobParams{Logger: logger.New(logger.Options{ServiceName: "test"})})
	if err == nil {
		t.Fatal("expected error without ledger")
	}
}
