package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type staticSource struct {
	tenants []string
	err     error
}

func (s staticSource) AuthenticatedTenants(ctx context.Context) ([]string, error) {
	return s.tenants, s.err
}

type fakeConnector struct {
	mu     sync.Mutex
	called []string
	fail   map[string]bool
	panics map[string]bool
	delay  time.Duration
}

func (f *fakeConnector) EnsureConnected(ctx context.Context, id string) (ConnectResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.called = append(f.called, id)
	f.mu.Unlock()
	if f.panics[id] {
		panic("transport exploded")
	}
	if f.fail[id] {
		return ConnectResult{}, errors.New("boom")
	}
	return ConnectResult{Status: ConnectInitializing}, nil
}

func TestNewScanner_RequiresCollaborators(t *testing.T) {
	if _, err := NewScanner(ScannerOpts{Connector: &fakeConnector{}}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := NewScanner(ScannerOpts{Source: staticSource{}}); err == nil {
		t.Error("expected error without connector")
	}
}

func TestScan_IsolatesTenantFailures(t *testing.T) {
	var tenants []string
	for i := 0; i < 10; i++ {
		tenants = append(tenants, fmt.Sprintf("t%d", i))
	}
	conn := &fakeConnector{
		fail:   map[string]bool{"t3": true},
		panics: map[string]bool{"t7": true},
	}
	s, err := NewScanner(ScannerOpts{
		Source:    staticSource{tenants: tenants},
		Connector: conn,
		Workers:   3,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	report, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Discovered != 10 || report.Started != 8 || report.Failed != 2 {
		t.Errorf("report = %+v, want 10 discovered / 8 started / 2 failed", report)
	}

	conn.mu.Lock()
	called := append([]string(nil), conn.called...)
	conn.mu.Unlock()
	sort.Strings(called)
	sort.Strings(tenants)
	if len(called) != len(tenants) {
		t.Fatalf("EnsureConnected called for %d tenants, want %d", len(called), len(tenants))
	}
	for i := range tenants {
		if called[i] != tenants[i] {
			t.Errorf("called[%d] = %s, want %s", i, called[i], tenants[i])
		}
	}
}

func TestScan_RunsConcurrently(t *testing.T) {
	tenants := []string{"a", "b", "c", "d"}
	conn := &fakeConnector{delay: 50 * time.Millisecond}
	s, _ := NewScanner(ScannerOpts{
		Source:    staticSource{tenants: tenants},
		Connector: conn,
		Workers:   4,
		Logger:    zap.NewNop(),
	})

	start := time.Now()
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 180*time.Millisecond {
		t.Errorf("scan took %v; a slow tenant should not delay the others", elapsed)
	}
}

func TestScan_SourceError(t *testing.T) {
	s, _ := NewScanner(ScannerOpts{
		Source:    staticSource{err: errors.New("unreadable dir")},
		Connector: &fakeConnector{},
		Logger:    zap.NewNop(),
	})
	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected error from source")
	}
}

func TestScan_WithManagerOpensEveryTenant(t *testing.T) {
	m, mt, _ := newTestManager(t, ManagerOpts{})
	s, _ := NewScanner(ScannerOpts{
		Source:    staticSource{tenants: []string{"a", "b", "c"}},
		Connector: m,
		Logger:    zap.NewNop(),
	})

	report, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Started != 3 {
		t.Errorf("Started = %d, want 3", report.Started)
	}
	for _, id := range []string{"a", "b", "c"} {
		waitFor(t, "open "+id, func() bool { return mt.OpenCount(id) == 1 })
	}
}
