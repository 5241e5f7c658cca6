package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rentbell/internal/config"
	"github.com/zulandar/rentbell/internal/transport"
	"github.com/zulandar/rentbell/internal/transport/whatsapp"
	"go.uber.org/zap"
)

// storeTimeout bounds each whatsmeow store lookup from the CLI.
const storeTimeout = 10 * time.Second

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and remove saved WhatsApp sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsForgetCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved credential namespaces",
		Long:  "Lists every tenant with a credential namespace on disk and whether it holds a paired device.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rentbell config file")
	return cmd
}

func runSessionsList(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	creds, err := transport.NewCredentialStore(cfg.WhatsApp.SessionDir)
	if err != nil {
		return err
	}
	tenants, err := creds.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tenants) == 0 {
		fmt.Fprintf(out, "No saved sessions in %s\n", cfg.WhatsApp.SessionDir)
		return nil
	}

	wa, err := whatsapp.New(whatsapp.Opts{Credentials: creds, Logger: zap.NewNop()})
	if err != nil {
		return err
	}
	rows := make([]sessionRow, 0, len(tenants))
	for _, id := range tenants {
		ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
		paired, err := wa.Paired(ctx, id)
		cancel()
		row := sessionRow{TenantID: id, Paired: paired}
		if err != nil {
			row.Err = err.Error()
		}
		rows = append(rows, row)
	}
	fmt.Fprint(out, formatSessions(rows, useColor(out)))
	return nil
}

func newSessionsForgetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "forget <tenant>",
		Short: "Delete a tenant's saved credentials",
		Long:  "Deletes the tenant's credential namespace. The next connection will need a fresh QR scan. Stop the server first; a running session keeps its files open.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsForget(cmd, configPath, args[0], yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rentbell config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runSessionsForget(cmd *cobra.Command, configPath, tenantID string, skipConfirm bool) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	creds, err := transport.NewCredentialStore(cfg.WhatsApp.SessionDir)
	if err != nil {
		return err
	}
	if !transport.ValidTenantID(tenantID) {
		return fmt.Errorf("tenant %q: %w", tenantID, transport.ErrInvalidTenant)
	}
	if !creds.Exists(tenantID) {
		fmt.Fprintf(out, "No saved session for %s\n", tenantID)
		return nil
	}

	if !skipConfirm && !confirmForget(cmd, tenantID) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}
	if err := creds.Purge(tenantID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Forgot session for %s\n", tenantID)
	return nil
}

func confirmForget(cmd *cobra.Command, tenantID string) bool {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "This deletes the saved WhatsApp login for %q. The owner will have to scan a new QR code.\n", tenantID)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
