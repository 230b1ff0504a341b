// Package cmd contains the alertctl operator commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/alert-engine/internal/config"
)

var (
	configPath string
	output     string
)

var rootCmd = &cobra.Command{
	Use:   "alertctl",
	Short: "Operator tooling for the clinical alert engine",
	Long: `alertctl runs maintenance tasks against an alert engine deployment.

Examples:
  # Apply the schema and seed alert types
  alertctl migrate

  # Check a rules file before rolling it out
  alertctl rules validate ./config/rules.yml

  # Run one scan cycle now
  alertctl scan`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT stops a running scan from starting
// further patients.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: search ./config.yml, ./config, /app/config)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "plain", "output format (plain, json)")

	rootCmd.AddCommand(migrateCmd, scanCmd, rulesCmd, tokenCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
