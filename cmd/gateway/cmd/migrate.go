// cmd/gateway/cmd/migrate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"linky-gateway/internal/config"
	"linky-gateway/internal/database"
	"linky-gateway/internal/utils"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the PostgreSQL sink schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Sink.Type != config.SinkPostgres {
			return fmt.Errorf("migrations need the %s sink, configured sink is %s", config.SinkPostgres, cfg.Sink.Type)
		}

		logger, err := utils.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer utils.CloseLogger(logger)

		db, err := database.NewConnection(cmd.Context(), cfg.Sink.URL, &cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := database.NewMigrator(db, logger)
		if args[0] == "down" {
			return migrator.Down()
		}
		return migrator.Up()
	},
}
