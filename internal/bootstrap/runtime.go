// Package bootstrap holds the process setup shared by the long-running
// binaries: env and config, logger, database, dev migrations, and ordered
// teardown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/migrate"
	"github.com/angelmondragon/grocerybid-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// Runtime is a started process. Close releases what it opened in reverse
// order.
type Runtime struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []closer
}

// Start loads .env and config, builds the logger for kind, connects the
// database and applies embedded migrations when the dev flag allows.
func Start(ctx context.Context, kind string) (*Runtime, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	if envErr != nil {
		rt.Logger.Debug(ctx, "no .env file, using process environment")
	}

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	rt.OnClose("database", rt.DB.Close)

	if err := migrate.AutoApply(ctx, cfg, rt.Logger, rt.DB); err != nil {
		return nil, multierr.Append(fmt.Errorf("dev migrations: %w", err), rt.Close())
	}
	return rt, nil
}

// Redis connects the shared redis client and schedules its close.
func (rt *Runtime) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, rt.Config.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rt.OnClose("redis", client.Close)
	return client, nil
}

// OnClose registers fn to run during Close, before anything registered earlier.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, closer{name: name, fn: fn})
}

func (rt *Runtime) Close() error {
	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if cerr := c.fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	rt.closers = nil
	return err
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the env and
// service kind as log fields.
func (rt *Runtime) SignalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return rt.Logger.WithFields(ctx, map[string]any{
		"env":          rt.Config.App.Env,
		"service_kind": rt.Kind,
	}), stop
}

// Fatal logs err, closes the runtime and exits non-zero.
func (rt *Runtime) Fatal(ctx context.Context, msg string, err error) {
	rt.Logger.Error(ctx, msg, err)
	if cerr := rt.Close(); cerr != nil {
		rt.Logger.Error(ctx, "teardown failed", cerr)
	}
	os.Exit(1)
}

// Shutdown closes the runtime and logs any teardown error.
func (rt *Runtime) Shutdown(ctx context.Context) {
	if err := rt.Close(); err != nil {
		rt.Logger.Error(ctx, "teardown failed", err)
		return
	}
	rt.Logger.Info(ctx, rt.Kind+" stopped")
}

// Abort reports a failure that happened before a Runtime existed.
func Abort(kind string, err error) {
	logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), "startup failed", err)
	os.Exit(1)
}
