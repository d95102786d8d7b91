package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/jobroute/api/assignments"
	"github.com/kilianp07/jobroute/config"
	"github.com/kilianp07/jobroute/core/store"
)

var tokenFlags struct {
	role string
	ttl  time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Issue an API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		auth, err := assignments.NewAuthenticator(cfg.API.JWTSecret, cfg.API.Issuer)
		if err != nil {
			return err
		}
		role := store.Role(tokenFlags.role)
		switch role {
		case store.RoleProvider, store.RoleCustomer, store.RoleAdmin:
		default:
			return fmt.Errorf("unknown role %q", tokenFlags.role)
		}
		ttl := tokenFlags.ttl
		if ttl <= 0 {
			ttl = cfg.API.TokenTTL
		}
		tok, err := auth.Issue(args[0], role, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", string(store.RoleProvider), "provider, customer or admin")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime (defaults to api.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
