package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/Harshitk-cp/havi-knowledge/internal/config"
	"github.com/Harshitk-cp/havi-knowledge/internal/domain"
	"github.com/Harshitk-cp/havi-knowledge/internal/extract"
	"github.com/Harshitk-cp/havi-knowledge/internal/service"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/Harshitk-cp/havi-knowledge/internal/store/sqlite"
	"github.com/Harshitk-cp/havi-knowledge/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds a production logger at LOG_LEVEL, or a development one
// when the level is debug.
func newLogger() (*zap.Logger, error) {
	level := strings.ToLower(config.LogLevel())
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// backend is an opened store pair plus what the HTTP layer needs from it.
type backend struct {
	driver     string
	inferences domain.InferenceStore
	knowledge  domain.KnowledgeStore
	transactor domain.Transactor
	pinger     interface {
		Ping(ctx context.Context) error
	}
	close func()
}

func migrationSource() fs.FS {
	if dir := config.MigrationsPath(); dir != "" {
		return os.DirFS(dir)
	}
	return migrations.Postgres()
}

func openPostgres(ctx context.Context, logger *zap.Logger) (*pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the %s driver", config.DriverPostgres)
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", zap.String("driver", config.DriverPostgres))
	return pool, nil
}

// openBackend opens the configured store driver. SQLite applies its schema
// on open; Postgres runs pending migrations only when migrate is set.
func openBackend(ctx context.Context, migrate bool, logger *zap.Logger) (*backend, error) {
	switch driver := config.StoreDriver(); driver {
	case config.DriverPostgres:
		pool, err := openPostgres(ctx, logger)
		if err != nil {
			return nil, err
		}
		if migrate {
			if _, err := store.RunMigrations(ctx, pool, migrationSource(), logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &backend{
			driver:     driver,
			inferences: store.NewInferenceStore(pool),
			knowledge:  store.NewKnowledgeStore(pool),
			transactor: store.NewTransactor(pool),
			pinger:     pool,
			close:      pool.Close,
		}, nil

	case config.DriverSQLite:
		path := config.SQLitePath()
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("opened database", zap.String("driver", driver), zap.String("path", path))
		return &backend{
			driver:     driver,
			inferences: sqlite.NewInferenceStore(db),
			knowledge:  sqlite.NewKnowledgeStore(db),
			transactor: sqlite.NewTransactor(db),
			pinger:     db,
			close:      func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}

func newPolicy(logger *zap.Logger) (*service.PolicyService, error) {
	path := config.PolicyFile()
	if path == "" {
		return service.NewPolicyService(logger), nil
	}
	cfg, err := config.LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}
	return service.NewPolicyServiceFromConfig(cfg, logger)
}

func newKnowledgeService(b *backend, logger *zap.Logger) (*service.KnowledgeService, error) {
	policy, err := newPolicy(logger)
	if err != nil {
		return nil, err
	}
	cfg := service.KnowledgeConfig{
		PromptCooldown: config.PromptCooldown(),
		MaxPrompts:     config.PromptMaxPerTurn(),
	}
	return service.NewKnowledgeService(
		b.inferences,
		b.knowledge,
		extract.NewHeuristic(logger),
		policy,
		service.DefaultMergeRegistry(),
		cfg,
		logger,
	).UseTransactor(b.transactor), nil
}
