package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/spot-confirmation/internal/config"
	"github.com/iliyamo/spot-confirmation/internal/utils"
)

// TokenOptions holds flags for the token command.
type TokenOptions struct {
	Subject string
	Role    string
	TTL     time.Duration
}

// NewTokenCommand creates the token command.
func NewTokenCommand() *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Sign an access token with JWT_SECRET.  User management lives outside
this service; the token is for local testing.

Example:
  spotd token --sub promoter-demo --role promoter`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Only the signing secret matters here, so storage validation
			// errors are not fatal.
			cfg, _ := config.Load()
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}
			ttl := opts.TTL
			if ttl <= 0 {
				ttl = time.Duration(cfg.AccessTTLMin) * time.Minute
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, opts.Subject, opts.Role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "", "user id placed in the sub claim (required)")
	cmd.Flags().StringVar(&opts.Role, "role", "", "PROMOTER, COMEDIAN or ADMIN (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default ACCESS_TOKEN_TTL_MIN)")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}
