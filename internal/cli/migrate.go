package cli

import (
	"fmt"

	"github.com/Harshitk-cp/havi-knowledge/internal/config"
	"github.com/Harshitk-cp/havi-knowledge/internal/store"
	"github.com/Harshitk-cp/havi-knowledge/internal/store/sqlite"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := config.Load(); err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()

	switch driver := config.StoreDriver(); driver {
	case config.DriverPostgres:
		pool, err := openPostgres(ctx, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		applied, err := store.RunMigrations(ctx, pool, migrationSource(), logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)

	case config.DriverSQLite:
		db, err := sqlite.Open(config.SQLitePath())
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		defer db.Close()
		version, err := db.SchemaVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema at version %d (%s)\n", version, db.Path)

	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
	return nil
}
