package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePruner struct {
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 7, p.err
}

func TestNewRetention_Validation(t *testing.T) {
	if _, err := NewRetention(RetentionOpts{}); err == nil {
		t.Error("expected error without pruner")
	}
	if _, err := NewRetention(RetentionOpts{Pruner: &fakePruner{}, Schedule: "not cron"}); err == nil {
		t.Error("expected error for bad schedule")
	}
	if _, err := NewRetention(RetentionOpts{Pruner: &fakePruner{}, Schedule: "0 0 3 * * *"}); err == nil {
		t.Error("expected error for a six-field expression")
	}
}

func TestRetention_NextUsesSchedule(t *testing.T) {
	r, err := NewRetention(RetentionOpts{Pruner: &fakePruner{}, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("NewRetention: %v", err)
	}
	from := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)
	if got := r.Next(from); !got.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", from, got, want)
	}
}

func TestRetention_PruneNowUsesMaxAge(t *testing.T) {
	p := &fakePruner{}
	r, _ := NewRetention(RetentionOpts{Pruner: p, MaxAge: 48 * time.Hour, Logger: zap.NewNop()})
	now := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	n, err := r.PruneNow(context.Background(), now)
	if err != nil {
		t.Fatalf("PruneNow: %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d, want 7", n)
	}
	if len(p.cutoffs) != 1 || !p.cutoffs[0].Equal(now.Add(-48*time.Hour)) {
		t.Errorf("cutoffs = %v, want [%v]", p.cutoffs, now.Add(-48*time.Hour))
	}
}

func TestRetention_PruneNowError(t *testing.T) {
	r, _ := NewRetention(RetentionOpts{Pruner: &fakePruner{err: errors.New("locked")}, Logger: zap.NewNop()})
	if _, err := r.PruneNow(context.Background(), time.Now()); err == nil {
		t.Fatal("expected pruner error")
	}
}

func TestRetention_RunStopsOnCancel(t *testing.T) {
	r, _ := NewRetention(RetentionOpts{Pruner: &fakePruner{}, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
