package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rentbell/internal/api"
	"github.com/zulandar/rentbell/internal/config"
	"github.com/zulandar/rentbell/internal/transport"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <tenant>",
		Short: "Mint a bearer token for a tenant",
		Long:  "Signs an API token with the configured secret. Intended for testing the API with curl.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, args[0], ttl)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rentbell config file")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, configPath, tenantID string, ttl time.Duration) error {
	if !transport.ValidTenantID(tenantID) {
		return fmt.Errorf("tenant %q: %w", tenantID, transport.ErrInvalidTenant)
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tok, err := api.IssueToken(cfg.Server.JWTSecret, tenantID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
