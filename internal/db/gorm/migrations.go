// Package gorm provides GORM-based database operations for cadence.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: User directory and calendar action log.
		// Both are owned by other subsystems in production; created here so a
		// standalone deployment and the tests have a schema to read from.
		{
			ID: "001_users_and_actions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&User{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&CalendarAction{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("calendar_actions", "users")
			},
		},

		// Migration 002: Habit clusters
		{
			ID: "002_habit_clusters",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&HabitCluster{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("habit_clusters")
			},
		},

		// Migration 003: Refinement job log
		{
			ID: "003_refinement_job_logs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RefinementJobLog{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("refinement_job_logs")
			},
		},

		// Migration 004: Run claims (one in-progress marker per job type)
		{
			ID: "004_run_claims",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&RunClaim{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("run_claims")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
