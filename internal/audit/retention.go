package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Retention defaults.
const (
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultRetentionMaxAge   = 30 * 24 * time.Hour
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Pruner deletes journal rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionOpts holds parameters for creating a Retention.
type RetentionOpts struct {
	Pruner   Pruner
	Schedule string        // defaults to DefaultRetentionSchedule
	MaxAge   time.Duration // defaults to DefaultRetentionMaxAge
	Logger   *zap.Logger
}

// Retention prunes the journal on a cron schedule.
type Retention struct {
	pruner Pruner
	sched  cron.Schedule
	maxAge time.Duration
	log    *zap.Logger
}

// NewRetention parses the schedule and creates a Retention.
func NewRetention(opts RetentionOpts) (*Retention, error) {
	if opts.Pruner == nil {
		return nil, fmt.Errorf("audit: pruner is required")
	}
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultRetentionSchedule
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("audit: retention schedule %q: %w", expr, err)
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRetentionMaxAge
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Retention{pruner: opts.Pruner, sched: sched, maxAge: maxAge, log: log}, nil
}

// Next returns the first prune time after t.
func (r *Retention) Next(t time.Time) time.Time {
	return r.sched.Next(t)
}

// PruneNow deletes everything older than MaxAge relative to now.
func (r *Retention) PruneNow(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.pruner.Prune(ctx, now.Add(-r.maxAge))
	if err != nil {
		return 0, err
	}
	r.log.Info("audit: pruned journal", zap.Int64("rows", n))
	return n, nil
}

// Run prunes at every scheduled time until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	for {
		d := time.Until(r.Next(time.Now()))
		if d < 0 {
			d = 0
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			if _, err := r.PruneNow(ctx, now); err != nil {
				r.log.Error("audit: prune failed", zap.Error(err))
			}
		}
	}
}
