package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastygo/segments/internal/config"
	pgInfra "github.com/fastygo/segments/internal/infrastructure/postgres"
	"github.com/fastygo/segments/repository/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(pgInfra.Up), string(pgInfra.Down)},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := pgInfra.Up
		if len(args) == 1 {
			direction = pgInfra.Direction(args[0])
		}

		if cfg.Database.Driver == config.DriverSQLite {
			if direction != pgInfra.Up {
				return fmt.Errorf("sqlite schema cannot be rolled back; remove %s instead", cfg.Database.SQLitePath)
			}
			db, err := sqlite.Open(cfg.Database.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema ready at %s\n", cfg.Database.SQLitePath)
			return nil
		}

		if err := pgInfra.Migrate(cfg.Database, cfg.Migrations.Path, direction, log); err != nil {
			return fmt.Errorf("migrate %s: %w", direction, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrations %s complete\n", direction)
		return nil
	},
}
