package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/alert-engine/internal/repository/postgres"
)

var migrateTimeout time.Duration

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema and seed the built-in alert types",
	Long: `Apply the alert engine schema. Safe to run repeatedly: tables and
indexes are created if missing and alert types are upserted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
		defer cancel()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s@%s/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Name)
		return nil
	},
}

func init() {
	migrateCmd.Flags().DurationVar(&migrateTimeout, "timeout", time.Minute, "migration timeout")
}
