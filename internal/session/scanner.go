package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultScanWorkers is the default reattachment concurrency.
const DefaultScanWorkers = 4

// CredentialSource lists tenants that hold authenticated credentials.
type CredentialSource interface {
	AuthenticatedTenants(ctx context.Context) ([]string, error)
}

// Connector starts a tenant's connection. *Manager implements it.
type Connector interface {
	EnsureConnected(ctx context.Context, tenantID string) (ConnectResult, error)
}

// ScannerOpts holds parameters for creating a Scanner.
type ScannerOpts struct {
	Source    CredentialSource
	Connector Connector
	Workers   int // defaults to DefaultScanWorkers
	Logger    *zap.Logger
}

// Scanner reattaches previously authenticated tenants at startup.
type Scanner struct {
	source    CredentialSource
	connector Connector
	workers   int
	log       *zap.Logger
}

// ScanReport summarizes one scan.
type ScanReport struct {
	Discovered int
	Started    int
	Failed     int
}

// NewScanner creates a Scanner.
func NewScanner(opts ScannerOpts) (*Scanner, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("session: scanner: credential source is required")
	}
	if opts.Connector == nil {
		return nil, fmt.Errorf("session: scanner: connector is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultScanWorkers
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Scanner{source: opts.Source, connector: opts.Connector, workers: workers, log: log}, nil
}

// Scan calls EnsureConnected once per discovered tenant on a bounded worker
// pool. A tenant's error or panic is logged and counted; it never stops the
// others. Callers run Scan in its own goroutine.
func (s *Scanner) Scan(ctx context.Context) (ScanReport, error) {
	tenants, err := s.source.AuthenticatedTenants(ctx)
	if err != nil {
		return ScanReport{}, fmt.Errorf("session: scan: %w", err)
	}
	report := ScanReport{Discovered: len(tenants)}
	if len(tenants) == 0 {
		s.log.Info("session: scan found no stored sessions")
		return report, nil
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return report, fmt.Errorf("session: scan pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		started atomic.Int64
		failed  atomic.Int64
	)
	for _, id := range tenants {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					s.log.Error("session: reattach panicked", zap.String("tenant", id), zap.Any("panic", r))
				}
			}()
			if _, err := s.connector.EnsureConnected(ctx, id); err != nil {
				failed.Add(1)
				s.log.Warn("session: reattach failed", zap.String("tenant", id), zap.Error(err))
				return
			}
			started.Add(1)
			s.log.Info("session: reattaching", zap.String("tenant", id))
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			failed.Add(1)
			s.log.Warn("session: reattach not scheduled", zap.String("tenant", id), zap.Error(err))
		}
	}
	wg.Wait()

	report.Started = int(started.Load())
	report.Failed = int(failed.Load())
	s.log.Info("session: scan complete",
		zap.Int("discovered", report.Discovered),
		zap.Int("started", report.Started),
		zap.Int("failed", report.Failed))
	return report, nil
}
