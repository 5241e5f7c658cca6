// Package api exposes the session manager and reminder dispatcher over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/rentbell/internal/dispatch"
	"github.com/zulandar/rentbell/internal/session"
	"go.uber.org/zap"
)

// Sessions is the part of session.Manager the API drives.
type Sessions interface {
	EnsureConnected(ctx context.Context, tenantID string) (session.ConnectResult, error)
	Reset(ctx context.Context, tenantID string) (session.ConnectResult, error)
	Disconnect(ctx context.Context, tenantID string, forget bool) error
	Status(tenantID string) session.Status
}

// Sender sends a batch of reminders.
type Sender interface {
	SendAll(ctx context.Context, tenantID string, targets []dispatch.Target) (*dispatch.Outcome, error)
}

// Opts holds configuration for the API server.
type Opts struct {
	Sessions        Sessions
	Sender          Sender
	JWTSecret       string
	Port            int
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	router          *gin.Engine
	port            int
	shutdownTimeout time.Duration
	log             *zap.Logger
}

// New builds the router.
func New(opts Opts) (*Server, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("api: sessions are required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("api: sender is required")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("api: jwt secret is required")
	}
	if opts.Port <= 0 {
		opts.Port = 5000
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := &handlers{sessions: opts.Sessions, sender: opts.Sender, log: log}
	registerRoutes(router, h, opts.JWTSecret)

	return &Server{router: router, port: opts.Port, shutdownTimeout: opts.ShutdownTimeout, log: log}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("api: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("tenant", tenantOf(c)))
	}
}
