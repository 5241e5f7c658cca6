// Package notify posts operator alerts to chat platforms when a tenant's
// WhatsApp session fails or drops.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/rentbell/internal/session"
	"go.uber.org/zap"
)

// DefaultPostTimeout bounds a single sink post.
const DefaultPostTimeout = 10 * time.Second

// Color constants for alert severity.
const (
	ColorWarning = "#ff9800"
	ColorError   = "#e53935"
)

// Alert is one operator notification.
type Alert struct {
	TenantID string
	Title    string
	Body     string
	Color    string
	Fields   []Field
	At       time.Time
}

// Field is a key-value pair displayed with an alert.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Sink delivers alerts to one platform.
type Sink interface {
	Name() string
	Post(ctx context.Context, a Alert) error
}

// alertTriggers are the transitions worth waking an operator for. Explicit
// disconnects, forgets, and resets are user actions and stay quiet.
var alertTriggers = map[string]bool{
	"open_failed":            true,
	"auth_failed":            true,
	"ready_timeout":          true,
	"transport_disconnected": true,
}

// NotifierOpts holds parameters for creating a Notifier.
type NotifierOpts struct {
	Sinks       []Sink
	PostTimeout time.Duration // defaults to DefaultPostTimeout
	Logger      *zap.Logger
}

// Notifier turns session transitions into alerts. It is a session.Observer.
type Notifier struct {
	sinks   []Sink
	timeout time.Duration
	log     *zap.Logger
}

// NewNotifier creates a Notifier. A Notifier without sinks drops everything.
func NewNotifier(opts NotifierOpts) *Notifier {
	timeout := opts.PostTimeout
	if timeout <= 0 {
		timeout = DefaultPostTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Notifier{sinks: opts.Sinks, timeout: timeout, log: log}
}

// OnTransition posts an alert for unexpected failures and drops.
func (n *Notifier) OnTransition(t session.Transition) {
	a, ok := alertFor(t)
	if !ok || len(n.sinks) == 0 {
		return
	}
	for _, s := range n.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		if err := s.Post(ctx, a); err != nil {
			n.log.Warn("notify: post failed",
				zap.String("sink", s.Name()),
				zap.String("tenant", t.TenantID),
				zap.Error(err))
		}
		cancel()
	}
}

// alertFor formats t, reporting false when t should not alert.
func alertFor(t session.Transition) (Alert, bool) {
	if !alertTriggers[t.Trigger] {
		return Alert{}, false
	}
	a := Alert{
		TenantID: t.TenantID,
		Body:     t.Detail,
		At:       t.At,
		Fields: []Field{
			{Name: "Tenant", Value: t.TenantID, Short: true},
			{Name: "Previous state", Value: t.From.String(), Short: true},
		},
	}
	switch t.To {
	case session.StateFailed:
		a.Title = fmt.Sprintf("WhatsApp session failed for %s", t.TenantID)
		a.Color = ColorError
	case session.StateDisconnected:
		a.Title = fmt.Sprintf("WhatsApp session disconnected for %s", t.TenantID)
		a.Color = ColorWarning
	default:
		return Alert{}, false
	}
	if a.Body == "" {
		a.Body = "No further detail."
	}
	return a, true
}
