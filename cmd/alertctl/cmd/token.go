package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/alert-engine/pkg/auth"
)

var (
	tokenUser string
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for testing an environment",
	Long: `Sign a short-lived access token with the configured JWT secret.
Production tokens come from the identity service; this is for smoke tests.

Example:
  alertctl token --user 6f1c... --role admin --ttl 15m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(tokenUser)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		switch tokenRole {
		case auth.RoleAdmin, auth.RoleClinician, auth.RolePatient:
		default:
			return fmt.Errorf("invalid --role %q", tokenRole)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWT.Secret == "" {
			return errors.New("jwt.secret is not configured")
		}

		token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateAccessToken(userID, tokenRole, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleClinician, "role: admin, clinician or patient")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 15*time.Minute, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
