package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/cadence/internal/db/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info().Str("driver", store.Driver()).Msg("Database migrated")
		return nil
	},
}

var clearUserID string

var clearHabitsCmd = &cobra.Command{
	Use:   "clear-habits",
	Short: "Delete every habit cluster of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if clearUserID == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := gorm.NewClusterStore(store).DeleteByUser(cmd.Context(), clearUserID)
		if err != nil {
			return fmt.Errorf("clear habits: %w", err)
		}
		log.Info().Str("userId", clearUserID).Int64("clusters", n).Msg("Habit data cleared")
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d habit clusters for %s\n", n, clearUserID)
		return nil
	},
}

func init() {
	clearHabitsCmd.Flags().StringVar(&clearUserID, "user", "", "User id whose habit data is deleted")
}
