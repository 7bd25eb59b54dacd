package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldgate/fieldgate/pkg/api"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API access token",
	Long: `Mint a bearer token for the gateway API, signed with the jwtSecret
from the configuration file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwtSecret is not configured")
		}

		token, err := api.IssueToken(cfg.Auth.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
