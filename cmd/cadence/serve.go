package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/cadence/internal/refinement"
	"github.com/thebtf/cadence/internal/worker"
	"github.com/thebtf/cadence/internal/worker/sse"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP worker with the scheduled refinement trigger",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := sse.NewBroadcaster()
	a, err := newApp(ctx, refinement.WithNotifier(broadcaster))
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.CronSecret == "" {
		log.Warn().Msg("CADENCE_CRON_SECRET is empty, every trigger will be rejected")
	}

	svc := worker.NewService(Version, a.cfg, a.orchestrator, a.jobs, broadcaster)
	if err := svc.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Int("pid", os.Getpid()).Msg("Shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
