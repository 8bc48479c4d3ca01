// Package worker provides the HTTP worker service for cadence.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/cadence/internal/config"
	"github.com/thebtf/cadence/internal/refinement"
	"github.com/thebtf/cadence/internal/watcher"
	"github.com/thebtf/cadence/internal/worker/sse"
	"github.com/thebtf/cadence/pkg/models"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the timeout for read endpoints. Refinement
	// triggers and event streams are not bounded by it.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultJobListLimit is the page size of the job log listing.
	DefaultJobListLimit = 20

	// MaxJobListLimit caps the limit query parameter.
	MaxJobListLimit = 100
)

// Refiner is the refinement surface the HTTP layer drives.
type Refiner interface {
	Authorize(credential string) bool
	SetSecret(secret string)
	Trigger(ctx context.Context, credential string) (*refinement.Result, error)
	Clusters(ctx context.Context, userID string) ([]models.HabitCluster, error)
	Patterns(ctx context.Context, userID string) ([]models.RecurrencePattern, error)
}

// JobLister lists job log rows.
type JobLister interface {
	ListRecentJobs(ctx context.Context, limit int) ([]*models.RefinementJobLog, error)
}

// Service is the worker HTTP service.
type Service struct {
	// Version of the worker binary
	version string

	// Configuration
	config *config.Config

	// Domain services
	refiner        Refiner
	jobs           JobLister
	sseBroadcaster *sse.Broadcaster

	// Settings reload
	configWatcher *watcher.Watcher

	// HTTP server
	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	// ready is false while the service drains on shutdown.
	ready atomic.Bool

	wg sync.WaitGroup
}

// NewService creates the worker service and its routes.
func NewService(version string, cfg *config.Config, refiner Refiner, jobs JobLister, broadcaster *sse.Broadcaster) *Service {
	s := &Service{
		version:        version,
		config:         cfg,
		refiner:        refiner,
		jobs:           jobs,
		sseBroadcaster: broadcaster,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.ready.Store(true)
	return s
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Health and status
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)

	// Scheduled trigger. Authenticates itself so that a rejected credential
	// is reported by the orchestrator before any job row exists.
	s.router.With(s.requireReady).Get("/api/cron/refine-habits", s.handleRefine)
	s.router.With(s.requireReady).Post("/api/cron/refine-habits", s.handleRefine)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Get("/api/events", s.sseBroadcaster.HandleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(DefaultHTTPTimeout))
			r.Get("/api/habits/{userID}", s.handleGetHabits)
			r.Get("/api/habits/{userID}/patterns", s.handleGetPatterns)
			r.Get("/api/refinement/jobs", s.handleListJobs)
		})
	})
}

// Start binds the worker port and serves in the background.
func (s *Service) Start() error {
	port := s.config.WorkerPort
	if port <= 0 {
		port = config.GetWorkerPort()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.startWatchers()

	log.Info().
		Int("port", port).
		Str("version", s.version).
		Msg("Worker HTTP server started")
	return nil
}

// startWatchers watches the settings file for changes.
func (s *Service) startWatchers() {
	configPath := config.SettingsPath()
	configWatcher, err := watcher.New(configPath, s.reloadConfig)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
		return
	}
	if err := configWatcher.Start(); err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("Failed to start config watcher")
		_ = configWatcher.Stop()
		return
	}
	s.configWatcher = configWatcher
	log.Info().Str("path", configPath).Msg("Config file watcher started")
}

// reloadConfig applies settings that can change without a restart.
func (s *Service) reloadConfig() {
	cfg, err := config.Reload()
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload settings")
		return
	}

	s.refiner.SetSecret(cfg.CronSecret)

	if cfg.WorkerPort != s.config.WorkerPort || cfg.DBDriver != s.config.DBDriver ||
		cfg.DatabaseURL != s.config.DatabaseURL || cfg.DBPath != s.config.DBPath ||
		cfg.LockBackend != s.config.LockBackend || cfg.EmbeddingProvider != s.config.EmbeddingProvider {
		log.Warn().Msg("Settings changed that only take effect after a restart")
	}

	s.sseBroadcaster.Broadcast(map[string]interface{}{
		"type":    "config_reloaded",
		"message": "Configuration reloaded",
	})
	log.Info().Msg("Settings reloaded")
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	if s.configWatcher != nil {
		_ = s.configWatcher.Stop()
	}

	var err error
	if s.server != nil {
		if err = s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	log.Info().Msg("Worker service shutdown complete")
	return err
}
