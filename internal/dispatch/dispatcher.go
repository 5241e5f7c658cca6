// Package dispatch sends rent reminders over a tenant's ready session, one
// target at a time with a fixed pause between sends.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/rentbell/internal/session"
	"github.com/zulandar/rentbell/internal/transport"
	"go.uber.org/zap"
)

// DefaultDelay is the pause between consecutive sends.
const DefaultDelay = time.Second

// User-facing precondition messages.
const (
	MsgRestoring    = `Restoring WhatsApp connection... Please wait 15-20 seconds and click "Send All Reminders" again.`
	MsgConnecting   = "WhatsApp is connecting... Please wait a moment and try again."
	MsgNotConnected = "WhatsApp not connected. Please connect from Settings page first."
	MsgNoTargets    = "No residents to send reminders to"
)

// ErrNoTargets is returned when SendAll gets an empty target list.
var ErrNoTargets = errors.New("dispatch: no targets")

// Target is one reminder recipient.
type Target struct {
	Phone  string  `json:"phone"`
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// ResultStatus is the per-target outcome.
type ResultStatus string

const (
	StatusSent   ResultStatus = "sent"
	StatusFailed ResultStatus = "failed"
)

// Result records what happened to one target.
type Result struct {
	Phone  string       `json:"phone"`
	Name   string       `json:"name"`
	Status ResultStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// Summary holds aggregate counts.
type Summary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Outcome is the response of SendAll.
type Outcome struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Results []Result `json:"results,omitempty"`
	Summary Summary  `json:"summary"`
	RunID   string   `json:"runId,omitempty"`
}

// Run is a completed dispatch as handed to the RunRecorder.
type Run struct {
	ID         string
	TenantID   string
	Results    []Result
	Summary    Summary
	StartedAt  time.Time
	FinishedAt time.Time
}

// SessionSource is the view of the session manager the dispatcher needs.
type SessionSource interface {
	Status(tenantID string) session.Status
	ReadyHandle(tenantID string) (transport.Handle, bool)
	EnsureConnected(ctx context.Context, tenantID string) (session.ConnectResult, error)
	HasCredentials(tenantID string) bool
}

// RunRecorder persists completed runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Opts holds parameters for creating a Dispatcher.
type Opts struct {
	Sessions    SessionSource
	Recorder    RunRecorder // optional
	Template    string      // defaults to DefaultTemplate
	Locale      string      // defaults to DefaultLocale
	CountryCode string      // defaults to DefaultCountryCode
	Delay       time.Duration
	Logger      *zap.Logger

	// Sleep waits between sends; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Dispatcher sends reminders over ready sessions.
type Dispatcher struct {
	sessions    SessionSource
	recorder    RunRecorder
	renderer    *Renderer
	countryCode string
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         *zap.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

// lane serializes runs for one tenant. The pause between sends also holds
// across back-to-back runs.
type lane struct {
	sem      chan struct{}
	lastSend time.Time
}

// New creates a Dispatcher.
func New(opts Opts) (*Dispatcher, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("dispatch: sessions are required")
	}
	r, err := NewRenderer(opts.Template, opts.Locale)
	if err != nil {
		return nil, err
	}
	cc := opts.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}
	if digits(cc) != cc {
		return nil, fmt.Errorf("dispatch: country code %q must be digits only", cc)
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Dispatcher{
		sessions:    opts.Sessions,
		recorder:    opts.Recorder,
		renderer:    r,
		countryCode: cc,
		delay:       delay,
		sleep:       sleep,
		log:         log,
		lanes:       make(map[string]*lane),
	}, nil
}

// acquire waits for the tenant's lane. Release with release.
func (d *Dispatcher) acquire(ctx context.Context, tenantID string) (*lane, error) {
	d.mu.Lock()
	l, ok := d.lanes[tenantID]
	if !ok {
		l = &lane{sem: make(chan struct{}, 1)}
		d.lanes[tenantID] = l
	}
	d.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return l, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *lane) release() { <-l.sem }

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendAll sends one reminder per target, in order, over the tenant's ready
// session. When the session is not ready it returns an unsuccessful Outcome
// without sending; the error is non-nil only when the tenant has nothing to
// reconnect to or the target list is empty. Per-target failures never abort
// the batch. Runs for the same tenant are serialized; a second call waits for
// the first to finish.
func (d *Dispatcher) SendAll(ctx context.Context, tenantID string, targets []Target) (*Outcome, error) {
	h, ok := d.sessions.ReadyHandle(tenantID)
	if !ok {
		return d.notReady(ctx, tenantID)
	}
	if len(targets) == 0 {
		return &Outcome{Message: MsgNoTargets}, ErrNoTargets
	}

	log := d.log.With(zap.String("tenant", tenantID))
	l, err := d.acquire(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: wait for running batch: %w", err)
	}
	defer l.release()
	// The session may have dropped while an earlier run held the lane.
	if h, ok = d.sessions.ReadyHandle(tenantID); !ok {
		return d.notReady(ctx, tenantID)
	}

	// The previous run for this tenant may have sent moments ago.
	if !l.lastSend.IsZero() {
		if wait := d.delay - time.Since(l.lastSend); wait > 0 {
			log.Debug("dispatch: pacing after previous run", zap.Duration("wait", wait))
			_ = d.sleep(ctx, wait)
		}
	}

	run := Run{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Results:   make([]Result, 0, len(targets)),
		StartedAt: time.Now(),
	}

	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			run.Results = append(run.Results, failed(t, err))
			continue
		}
		recipient, err := NormalizePhone(t.Phone, d.countryCode)
		if err != nil {
			run.Results = append(run.Results, failed(t, err))
			continue
		}

		err = h.Send(ctx, recipient, d.renderer.Render(t))
		l.lastSend = time.Now()
		if err != nil {
			log.Warn("dispatch: send failed", zap.String("phone", MaskPhone(t.Phone)), zap.Error(err))
			run.Results = append(run.Results, failed(t, err))
		} else {
			run.Results = append(run.Results, Result{Phone: t.Phone, Name: t.Name, Status: StatusSent})
		}

		if i < len(targets)-1 {
			// A cancelled wait is picked up by the ctx check above.
			_ = d.sleep(ctx, d.delay)
		}
	}
	run.FinishedAt = time.Now()
	run.Summary = summarize(run.Results)

	if d.recorder != nil {
		if err := d.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("dispatch: record run", zap.String("run", run.ID), zap.Error(err))
		}
	}
	log.Info("dispatch: run complete",
		zap.String("run", run.ID),
		zap.Int("sent", run.Summary.Sent),
		zap.Int("failed", run.Summary.Failed))

	return &Outcome{
		Success: true,
		Message: summaryMessage(run.Summary),
		Results: run.Results,
		Summary: run.Summary,
		RunID:   run.ID,
	}, nil
}

// notReady decides what to tell a caller whose session is not Ready.
func (d *Dispatcher) notReady(ctx context.Context, tenantID string) (*Outcome, error) {
	st := d.sessions.Status(tenantID)
	switch {
	case st.IsInitializing:
		return &Outcome{Message: MsgConnecting}, nil
	case d.sessions.HasCredentials(tenantID):
		if _, err := d.sessions.EnsureConnected(ctx, tenantID); err != nil {
			d.log.Warn("dispatch: restore session", zap.String("tenant", tenantID), zap.Error(err))
		}
		return &Outcome{Message: MsgRestoring}, nil
	}
	return &Outcome{Message: MsgNotConnected}, session.ErrNotConnected
}

func failed(t Target, err error) Result {
	return Result{Phone: t.Phone, Name: t.Name, Status: StatusFailed, Error: err.Error()}
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Status == StatusSent {
			s.Sent++
		} else {
			s.Failed++
		}
	}
	return s
}

func summaryMessage(s Summary) string {
	msg := fmt.Sprintf("Sent %d reminder(s)", s.Sent)
	if s.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", s.Failed)
	}
	return msg
}
