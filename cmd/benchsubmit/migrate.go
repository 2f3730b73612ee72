package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/benchsubmit/pkg/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the results tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Start migrates on its own when auto_migrate is set.
	cfg.Database.AutoMigrate = false

	ctx := cmd.Context()

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop store")
		}
	}()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}

	log.WithField("driver", cfg.Database.Driver).Info("Migration complete")

	return nil
}
