package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/rentbell/internal/api"
	"github.com/zulandar/rentbell/internal/audit"
	"github.com/zulandar/rentbell/internal/config"
	"github.com/zulandar/rentbell/internal/db"
	"github.com/zulandar/rentbell/internal/dispatch"
	"github.com/zulandar/rentbell/internal/logging"
	"github.com/zulandar/rentbell/internal/notify"
	"github.com/zulandar/rentbell/internal/session"
	"github.com/zulandar/rentbell/internal/transport"
	"github.com/zulandar/rentbell/internal/transport/whatsapp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and reattach saved sessions",
		Long:  "Starts the API server, reconnects every tenant with saved WhatsApp credentials in the background, and prunes the journal on schedule.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rentbell config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, flush, err := logging.Install(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// app is the wired server process.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	wa         *whatsapp.Transport
	manager    *session.Manager
	dispatcher *dispatch.Dispatcher
	scanner    *session.Scanner
	retention  *audit.Retention
	server     *api.Server
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	gormDB, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.Database.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	creds, err := transport.NewCredentialStore(cfg.WhatsApp.SessionDir)
	if err != nil {
		return nil, err
	}
	wa, err := whatsapp.New(whatsapp.Opts{
		Credentials: creds,
		LowResource: cfg.WhatsApp.LowResource,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	journal, err := audit.NewJournal(audit.JournalOpts{DB: gormDB, Logger: log})
	if err != nil {
		return nil, err
	}
	sinks, err := buildSinks(cfg.Notify)
	if err != nil {
		return nil, err
	}
	observers := []session.Observer{journal}
	if len(sinks) > 0 {
		observers = append(observers, notify.NewNotifier(notify.NotifierOpts{Sinks: sinks, Logger: log}))
	}

	manager, err := session.NewManager(session.ManagerOpts{
		Transport:         wa,
		Credentials:       creds,
		ReadyTimeout:      cfg.WhatsApp.ReadyTimeout,
		HeartbeatInterval: cfg.WhatsApp.HeartbeatInterval,
		Observers:         observers,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(dispatch.Opts{
		Sessions:    manager,
		Recorder:    journal,
		Template:    cfg.Dispatch.Template,
		Locale:      cfg.Dispatch.Locale,
		CountryCode: cfg.Dispatch.CountryCode,
		Delay:       cfg.Dispatch.Delay,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	scanner, err := session.NewScanner(session.ScannerOpts{
		Source:    wa,
		Connector: manager,
		Workers:   cfg.WhatsApp.ScanWorkers,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	retention, err := audit.NewRetention(audit.RetentionOpts{
		Pruner:   journal,
		Schedule: cfg.Audit.RetentionSchedule,
		MaxAge:   cfg.Audit.MaxAge,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	server, err := api.New(api.Opts{
		Sessions:        manager,
		Sender:          dispatcher,
		JWTSecret:       cfg.Server.JWTSecret,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		db:         gormDB,
		wa:         wa,
		manager:    manager,
		dispatcher: dispatcher,
		scanner:    scanner,
		retention:  retention,
		server:     server,
	}, nil
}

// buildSinks returns the enabled alert sinks.
func buildSinks(cfg config.NotifyConfig) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.Slack.Enabled() {
		s, err := notify.NewSlack(notify.SlackOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Discord.Enabled() {
		d, err := notify.NewDiscord(notify.DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, d)
	}
	return sinks, nil
}

// run serves until ctx is done. Saved sessions are reattached in the
// background so the listener comes up immediately.
func (a *app) run(ctx context.Context) error {
	go func() {
		report, err := a.scanner.Scan(ctx)
		if err != nil {
			a.log.Error("serve: session scan", zap.Error(err))
			return
		}
		a.log.Info("serve: session scan complete",
			zap.Int("discovered", report.Discovered),
			zap.Int("started", report.Started),
			zap.Int("failed", report.Failed))
	}()
	go a.retention.Run(ctx)

	err := a.server.Run(ctx)

	for _, st := range a.manager.Snapshot() {
		a.log.Info("serve: closing session",
			zap.String("tenant", st.TenantID),
			zap.Stringer("state", st.State))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := a.manager.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn("serve: session shutdown", zap.Error(serr))
	}
	return err
}

// close releases the database handle.
func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
