package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/onair-service/internal/application"
	"github.com/psds-microservice/onair-service/internal/config"
	"github.com/psds-microservice/onair-service/internal/database"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/model"
	"github.com/psds-microservice/onair-service/internal/service"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Run migrations and seeds (migrate up, default rooms, then database/seeds/*.sql)",
	RunE:  runSeed,
}

// defaultRooms always exist; SQL seeds may add more.
var defaultRooms = []struct {
	kind     model.RoomKind
	key      string
	category string
}{
	{model.RoomKindPublic, "lobby", "general"},
	{model.RoomKindPublic, "now-playing", "radio"},
	{model.RoomKindAlumni, service.AlumniGeneralScope, ""},
}

func runSeed(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := application.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	db, err := application.OpenDatabase(cfg, logger)
	if err != nil {
		return err
	}

	catalog := service.NewRoomCatalog(db, identity.NewProfileStore(db), logger)
	for _, r := range defaultRooms {
		if _, err := catalog.Resolve(context.Background(), r.kind, r.key, r.category); err != nil {
			return fmt.Errorf("seed room %s: %w", r.key, err)
		}
	}
	// SQL seeds use PostgreSQL syntax.
	if cfg.DBDriver != config.DriverPostgres {
		return nil
	}
	if err := database.RunSeeds(db, logger); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	return nil
}
