package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
)

// DefaultDir is where create and validate look when run from the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Commands understood by Runner.Apply.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandRedo    = "redo"
	CommandStatus  = "status"
	CommandVersion = "version"
)

// Runner applies the ledger schema with a goose provider. Migrations come
// from the binary unless a directory is given.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(sqlDB *sql.DB, dir string, logg *logger.Logger) (*Runner, error) {
	if sqlDB == nil {
		return nil, errors.New("sql db is required")
	}
	source, err := migrationsFS(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

func migrationsFS(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return sub, nil
}

// Apply runs one command. target is only read by CommandVersion and is a
// YYYYMMDDHHMMSS migration version.
func (r *Runner) Apply(ctx context.Context, command, target string) error {
	switch command {
	case CommandUp:
		results, err := r.provider.Up(ctx)
		r.logResults(ctx, results...)
		return wrapGoose(command, err)

	case CommandDown:
		result, err := r.provider.Down(ctx)
		r.logResults(ctx, result)
		return wrapGoose(command, err)

	case CommandRedo:
		down, err := r.provider.Down(ctx)
		r.logResults(ctx, down)
		if err != nil {
			return wrapGoose(command, err)
		}
		up, err := r.provider.UpByOne(ctx)
		r.logResults(ctx, up)
		return wrapGoose(command, err)

	case CommandStatus:
		return r.status(ctx)

	case CommandVersion:
		return r.migrateTo(ctx, target)

	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

func (r *Runner) migrateTo(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != 14 {
		return fmt.Errorf("invalid version %q, expected YYYYMMDDHHMMSS", target)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = r.provider.UpTo(ctx, version)
	case version < current:
		results, err = r.provider.DownTo(ctx, version)
	}
	r.logResults(ctx, results...)
	return wrapGoose(CommandVersion, err)
}

func (r *Runner) status(ctx context.Context) error {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return wrapGoose(CommandStatus, err)
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"file":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func (r *Runner) logResults(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		fields := map[string]any{
			"version":     res.Source.Version,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}
		if res.Error != nil {
			r.logg.Error(r.logg.WithFields(ctx, fields), "migration failed", res.Error)
			continue
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "migration applied")
	}
}

func wrapGoose(command string, err error) error {
	switch {
	case err == nil, errors.Is(err, goose.ErrNoNextVersion) && command == CommandUp:
		return nil
	default:
		return fmt.Errorf("goose %s: %w", command, err)
	}
}

// AutoApply brings a dev database up to date on boot when the feature flag
// allows it. Other environments run cmd/migrate explicitly.
func AutoApply(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql db handle: %w", err)
	}
	runner, err := NewRunner(sqlDB, "", logg)
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "applying embedded migrations")
	return runner.Apply(ctx, CommandUp, "")
}
