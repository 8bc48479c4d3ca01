package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/cadence/internal/config"
	"github.com/thebtf/cadence/internal/db/gorm"
	"github.com/thebtf/cadence/internal/embedding"
	"github.com/thebtf/cadence/internal/lock"
	"github.com/thebtf/cadence/internal/refinement"
)

// loadConfig ensures the data directory and reads validated settings.
func loadConfig() (*config.Config, error) {
	if err := config.EnsureAll(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured database and runs migrations.
func openStore(cfg *config.Config) (*gorm.Store, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	store, err := gorm.NewStore(gorm.Config{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DatabaseURL,
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
		LogLevel: logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	return store, nil
}

// newProvider builds the batched production embedding provider.
func newProvider(ctx context.Context, cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "genai":
		engine, err := embedding.NewGenAIEngine(ctx, embedding.GenAIConfig{
			APIKey:    cfg.GenAIAPIKey,
			Model:     cfg.EmbeddingModel,
			MaxTokens: cfg.EmbeddingMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("engine", engine.Name()).Msg("Embedding provider ready")
		return embedding.NewBatched(engine), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// newLocker builds the configured run claim backend.
func newLocker(cfg *config.Config, store *gorm.Store) (lock.Locker, func(), error) {
	switch cfg.LockBackend {
	case "redis":
		pool := lock.NewRedisPool(cfg.RedisAddr)
		return lock.NewRedisLocker(pool), func() { _ = pool.Close() }, nil
	case "db", "":
		return lock.NewDBLocker(gorm.NewClaimStore(store)), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

// app holds the wired refinement components.
type app struct {
	cfg          *config.Config
	store        *gorm.Store
	jobs         *gorm.JobLogStore
	orchestrator *refinement.Orchestrator
	closeLocker  func()
}

func (a *app) Close() {
	a.closeLocker()
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Database close error")
	}
}

// newApp wires stores, provider and locker into an orchestrator.
func newApp(ctx context.Context, opts ...refinement.Option) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	locker, closeLocker, err := newLocker(cfg, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	jobs := gorm.NewJobLogStore(store)
	orch := refinement.New(refinement.Deps{
		Users:    gorm.NewUserStore(store),
		Actions:  gorm.NewActionStore(store),
		Clusters: gorm.NewClusterStore(store),
		Jobs:     jobs,
		Provider: provider,
		Locker:   locker,
	}, append([]refinement.Option{
		refinement.WithSecret(cfg.CronSecret),
		refinement.WithWindow(cfg.ActionWindow()),
		refinement.WithLeaseTTL(cfg.LeaseTTL()),
	}, opts...)...)

	return &app{
		cfg:          cfg,
		store:        store,
		jobs:         jobs,
		orchestrator: orch,
		closeLocker:  closeLocker,
	}, nil
}
