package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/onair-service/internal/application"
	"github.com/psds-microservice/onair-service/internal/config"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Print a bearer token for local testing (new user id when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	userID := uuid.NewString()
	if len(args) == 1 {
		if _, err := uuid.Parse(args[0]); err != nil {
			return fmt.Errorf("user id must be a uuid: %w", err)
		}
		userID = args[0]
	}
	tok, err := identity.NewJWTProvider(cfg.AuthJWTSecret, application.TokenIssuer).Issue(userID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user_id: %s\ntoken:   %s\n", userID, tok)
	return nil
}
