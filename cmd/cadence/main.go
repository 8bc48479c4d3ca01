// Package main provides the cadence command line: the HTTP worker, one-shot
// refinement runs and database maintenance.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var debug bool

var rootCmd = &cobra.Command{
	Use:           "cadence",
	Short:         "Habit clustering and pattern mining for calendar activity",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd, refineCmd, triggerCmd, migrateCmd, clearHabitsCmd)
}

// setupLogging configures the global zerolog logger on stderr.
func setupLogging(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("cadence failed")
		os.Exit(1)
	}
}
