package cmd

import (
	"fmt"

	"github.com/psds-microservice/onair-service/internal/application"
	"github.com/psds-microservice/onair-service/internal/config"
	"github.com/psds-microservice/onair-service/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations (golang-migrate for postgres, AutoMigrate for sqlite)",
	RunE:  runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DBDriver == config.DriverPostgres {
		return database.MigrateUp(cfg.DatabaseURL())
	}
	logger, err := application.NewLogger(cfg)
	if err != nil {
		return err
	}
	db, err := application.OpenDatabase(cfg, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
