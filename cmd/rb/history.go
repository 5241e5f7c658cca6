package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/rentbell/internal/audit"
	"github.com/zulandar/rentbell/internal/config"
	"github.com/zulandar/rentbell/internal/db"
	"go.uber.org/zap"
)

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		tenant     string
		limit      int
		items      bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reminder runs",
		Long:  "Lists journaled reminder runs, newest first. Phone numbers are shown masked as stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, configPath, tenant, limit, items)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rentbell config file")
	cmd.Flags().StringVar(&tenant, "tenant", "", "only show runs for this tenant")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&items, "items", false, "show per-recipient results")
	return cmd
}

func runHistory(cmd *cobra.Command, configPath, tenant string, limit int, items bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	journal, err := audit.NewJournal(audit.JournalOpts{DB: gormDB, Logger: zap.NewNop()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), storeTimeout)
	defer cancel()
	runs, err := journal.Runs(ctx, tenant, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No reminder runs recorded.")
		return nil
	}
	fmt.Fprint(out, formatRuns(runs, items, useColor(out)))
	return nil
}
