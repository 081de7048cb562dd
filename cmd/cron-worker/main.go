package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/grocerybid-backend/internal/bootstrap"
	"github.com/angelmondragon/grocerybid-backend/internal/cron"
	"github.com/angelmondragon/grocerybid-backend/internal/ledger"
	"github.com/angelmondragon/grocerybid-backend/pkg/metrics"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/redis"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), "cron-worker")
	if err != nil {
		bootstrap.Abort("cron-worker", err)
	}
	ctx, stop := rt.SignalContext()
	defer stop()

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		rt.Fatal(ctx, "redis unavailable", err)
	}
	service, err := newScheduler(rt, redisClient)
	if err != nil {
		rt.Fatal(ctx, "build scheduler", err)
	}

	rt.Logger.Info(ctx, "cron worker started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "cron worker stopped unexpectedly", err)
	}
	rt.Shutdown(ctx)
}

// newScheduler wires the ledger maintenance jobs behind one redis lease so
// only a single replica runs each cycle.
func newScheduler(rt *bootstrap.Runtime, redisClient *redis.Client) (*cron.Service, error) {
	cfg := rt.Config
	gdb := rt.DB.DB()

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		return nil, err
	}
	recharge, err := cron.NewRechargeExpiryJob(cron.RechargeExpiryJobParams{
		Logger: rt.Logger,
		Ledger: ledger.NewRepository(gdb),
		Expiry: cfg.Cron.RechargeExpiry,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     rt.Logger,
		DB:         rt.DB,
		Repository: outbox.NewRepository(gdb),
		Retention:  cfg.Cron.OutboxRetentionDays,
		Batch:      cfg.Cron.OutboxRetentionRows,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Jobs:     []cron.Job{recharge, retention},
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
