package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/rentbell/internal/transport"
	"go.uber.org/zap"
)

// DefaultReadyTimeout bounds the wait between authentication and readiness.
const DefaultReadyTimeout = 60 * time.Second

// Credentials is the slice of the credential store the Manager needs.
type Credentials interface {
	Exists(tenantID string) bool
	Purge(tenantID string) error
}

// ConnectStatus is the coarse outcome of EnsureConnected / Reset.
type ConnectStatus string

const (
	ConnectReady        ConnectStatus = "ready"
	ConnectInitializing ConnectStatus = "initializing"
)

// ConnectResult is returned by EnsureConnected and Reset.
type ConnectResult struct {
	Status  ConnectStatus
	Message string
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	Transport         transport.Transport
	Credentials       Credentials
	ReadyTimeout      time.Duration // defaults to DefaultReadyTimeout
	HeartbeatInterval time.Duration // defaults to DefaultHeartbeatInterval
	Observers         []Observer
	Logger            *zap.Logger
}

// Manager owns every tenant's lifecycle state machine. It is the only
// writer of Record fields.
type Manager struct {
	transport         transport.Transport
	creds             Credentials
	readyTimeout      time.Duration
	heartbeatInterval time.Duration
	observers         []Observer
	log               *zap.Logger
	store             *Store

	ctx       context.Context
	cancel    context.CancelFunc
	delivered chan struct{}

	// outbox holds transitions awaiting observers. Appending never waits on
	// an observer, so record locks stay short.
	outMu  sync.Mutex
	outbox []Transition
	wake   chan struct{}
}

// NewManager creates a Manager and starts its observer delivery loop.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("session: transport is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("session: credentials are required")
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		transport:         opts.Transport,
		creds:             opts.Credentials,
		readyTimeout:      readyTimeout,
		heartbeatInterval: heartbeat,
		observers:         opts.Observers,
		log:               log,
		store:             NewStore(),
		ctx:               ctx,
		cancel:            cancel,
		delivered:         make(chan struct{}),
		wake:              make(chan struct{}, 1),
	}
	go m.deliverLoop()
	return m, nil
}

// EnsureConnected starts a connection for tenantID unless one is ready or
// already in progress. It never blocks on the transport.
func (m *Manager) EnsureConnected(ctx context.Context, tenantID string) (ConnectResult, error) {
	if !transport.ValidTenantID(tenantID) {
		return ConnectResult{}, fmt.Errorf("session: ensure connected: %w", transport.ErrInvalidTenant)
	}
	rec := m.store.GetOrCreate(tenantID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case rec.state == StateReady && rec.handle != nil:
		return ConnectResult{Status: ConnectReady, Message: "WhatsApp already connected"}, nil
	case rec.state.Connecting():
		return ConnectResult{Status: ConnectInitializing, Message: "WhatsApp connecting... Check for QR code."}, nil
	}

	if !m.startLocked(rec, "ensure_connected") {
		return ConnectResult{}, &TransitionError{TenantID: tenantID, From: rec.state, To: StateInitializing}
	}
	return ConnectResult{Status: ConnectInitializing, Message: "WhatsApp connecting... Check for QR code."}, nil
}

// Reset tears down any connection, purges stored credentials, and starts a
// fresh pairing.
func (m *Manager) Reset(ctx context.Context, tenantID string) (ConnectResult, error) {
	if !transport.ValidTenantID(tenantID) {
		return ConnectResult{}, fmt.Errorf("session: reset: %w", transport.ErrInvalidTenant)
	}
	rec := m.store.GetOrCreate(tenantID)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.state != StateIdle && !rec.state.Terminal() {
		m.transitionLocked(rec, StateDisconnected, "reset", "")
	}
	if h := m.detachLocked(rec); h != nil {
		m.closeHandle(tenantID, h)
	}
	if err := m.creds.Purge(tenantID); err != nil {
		return ConnectResult{}, fmt.Errorf("session: reset %s: %w", tenantID, err)
	}
	rec.lastError = ""

	if !m.startLocked(rec, "reset") {
		return ConnectResult{}, &TransitionError{TenantID: tenantID, From: rec.state, To: StateInitializing}
	}
	return ConnectResult{Status: ConnectInitializing, Message: "WhatsApp session reset. Scan the new QR code."}, nil
}

// Disconnect closes the tenant's connection from any state. With forget, the
// device is unlinked and the credential namespace purged. Disconnecting an
// already disconnected tenant is a no-op.
func (m *Manager) Disconnect(ctx context.Context, tenantID string, forget bool) error {
	if !transport.ValidTenantID(tenantID) {
		return fmt.Errorf("session: disconnect: %w", transport.ErrInvalidTenant)
	}

	var h transport.Handle
	if rec, ok := m.store.Get(tenantID); ok {
		rec.mu.Lock()
		if rec.state != StateIdle && rec.state != StateDisconnected {
			trigger := "disconnect"
			if forget {
				trigger = "forget"
			}
			m.transitionLocked(rec, StateDisconnected, trigger, "")
		}
		h = m.detachLocked(rec)
		rec.lastError = ""
		rec.mu.Unlock()
	}

	if h != nil {
		if u, ok := h.(transport.Unlinker); ok && forget {
			if err := u.Unlink(ctx); err != nil {
				m.log.Warn("session: unlink failed", zap.String("tenant", tenantID), zap.Error(err))
			}
		}
		m.closeHandle(tenantID, h)
	}

	if forget {
		if err := m.creds.Purge(tenantID); err != nil {
			return fmt.Errorf("session: forget %s: %w", tenantID, err)
		}
		m.log.Info("session: credentials purged", zap.String("tenant", tenantID))
	}
	return nil
}

// ReadyHandle returns the live handle when the tenant is Ready.
func (m *Manager) ReadyHandle(tenantID string) (transport.Handle, bool) {
	rec, ok := m.store.Get(tenantID)
	if !ok {
		return nil, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	if rec.state != StateReady || rec.handle == nil {
		return nil, false
	}
	return rec.handle, true
}

// HasCredentials reports whether a credential namespace exists for tenantID.
func (m *Manager) HasCredentials(tenantID string) bool {
	return m.creds.Exists(tenantID)
}

// Shutdown closes every live handle without purging credentials, stops all
// timers, and flushes pending observer deliveries. Live records end in
// Disconnected.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, rec := range m.store.All() {
		rec.mu.Lock()
		if rec.state != StateIdle && rec.state != StateDisconnected {
			m.transitionLocked(rec, StateDisconnected, "shutdown", "")
		}
		if h := m.detachLocked(rec); h != nil {
			m.closeHandle(rec.TenantID, h)
		}
		rec.mu.Unlock()
	}
	m.cancel()

	select {
	case <-m.delivered:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: shutdown: %w", ctx.Err())
	}
}

// startLocked moves rec to Initializing under a new generation and opens
// the transport in the background.
func (m *Manager) startLocked(rec *Record, trigger string) bool {
	if !m.transitionLocked(rec, StateInitializing, trigger, "") {
		return false
	}
	rec.generation++
	gen := rec.generation
	rec.pairingCode = ""
	rec.syncPercent = 0
	rec.lastActivityAt = time.Now()
	m.startHeartbeatLocked(rec, gen)

	go m.open(rec, gen)
	return true
}

func (m *Manager) open(rec *Record, gen uint64) {
	h, err := m.transport.Open(m.ctx, rec.TenantID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.generation != gen {
		// Torn down while opening.
		if h != nil {
			m.closeHandle(rec.TenantID, h)
		}
		return
	}
	if err != nil {
		m.failLocked(rec, &ConnectionError{Err: err}, "open_failed")
		return
	}
	rec.handle = h
	go m.pump(rec, gen, h)
}

// pump applies h's events in order until the handle is torn down.
func (m *Manager) pump(rec *Record, gen uint64, h transport.Handle) {
	for {
		select {
		case ev := <-h.Events():
			if !m.apply(rec, gen, ev) {
				return
			}
		case <-h.Done():
			return
		}
	}
}

// apply runs one transport event through the state machine. It returns false
// once the handle that produced it is no longer current.
func (m *Manager) apply(rec *Record, gen uint64, ev transport.Event) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.generation != gen {
		return false
	}
	rec.lastActivityAt = ev.At
	if rec.lastActivityAt.IsZero() {
		rec.lastActivityAt = time.Now()
	}

	switch ev.Kind {
	case transport.EventPairingAvailable:
		switch rec.state {
		case StateInitializing:
			if m.transitionLocked(rec, StateWaitingForPairing, "pairing_available", "") {
				rec.pairingCode = ev.Payload
				rec.lastError = ""
			}
		case StateWaitingForPairing:
			rec.pairingCode = ev.Payload
		default:
			m.ignore(rec, ev)
		}

	case transport.EventAuthenticated:
		if rec.state == StateInitializing || rec.state == StateWaitingForPairing {
			m.authenticateLocked(rec, gen, "authenticated")
		} else {
			m.ignore(rec, ev)
		}

	case transport.EventReady:
		switch rec.state {
		case StateInitializing, StateWaitingForPairing:
			m.authenticateLocked(rec, gen, "ready_implicit")
			m.readyLocked(rec)
		case StateAuthenticating:
			m.readyLocked(rec)
		default:
			m.ignore(rec, ev)
		}

	case transport.EventAuthFailed:
		if !rec.state.Terminal() {
			m.failLocked(rec, &AuthFailure{Reason: ev.Reason}, "auth_failed")
			return false
		}

	case transport.EventConnectFailed:
		if !rec.state.Terminal() {
			m.failLocked(rec, &ConnectionError{Err: errors.New(ev.Reason)}, "open_failed")
			return false
		}

	case transport.EventDisconnected:
		if rec.handle != nil {
			m.transitionLocked(rec, StateDisconnected, "transport_disconnected", ev.Reason)
			rec.lastError = "disconnected: " + ev.Reason
			m.closeHandle(rec.TenantID, m.detachLocked(rec))
			return false
		}

	case transport.EventSyncProgress:
		if rec.state.Connecting() {
			rec.syncPercent = ev.Percent
			rec.stage = label(rec.state, rec.syncPercent)
		}
	}
	return true
}

func (m *Manager) ignore(rec *Record, ev transport.Event) {
	m.log.Debug("session: ignoring event",
		zap.String("tenant", rec.TenantID),
		zap.Stringer("event", ev.Kind),
		zap.Stringer("state", rec.state))
}

func (m *Manager) authenticateLocked(rec *Record, gen uint64, trigger string) {
	if !m.transitionLocked(rec, StateAuthenticating, trigger, "") {
		return
	}
	rec.pairingCode = ""
	m.stopReadyTimerLocked(rec)
	rec.readyTimer = time.AfterFunc(m.readyTimeout, func() { m.onReadyTimeout(rec, gen) })
}

func (m *Manager) readyLocked(rec *Record) {
	if !m.transitionLocked(rec, StateReady, "ready", "") {
		return
	}
	m.stopReadyTimerLocked(rec)
	m.stopHeartbeatLocked(rec)
	rec.pairingCode = ""
	rec.lastError = ""
}

func (m *Manager) onReadyTimeout(rec *Record, gen uint64) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.generation != gen || rec.state != StateAuthenticating {
		return
	}
	rec.readyTimer = nil
	m.failLocked(rec, &SyncTimeout{After: m.readyTimeout}, "ready_timeout")
}

// failLocked moves rec to Failed, records cause, and releases the handle.
func (m *Manager) failLocked(rec *Record, cause error, trigger string) {
	if !m.transitionLocked(rec, StateFailed, trigger, cause.Error()) {
		return
	}
	rec.lastError = cause.Error()
	if h := m.detachLocked(rec); h != nil {
		m.closeHandle(rec.TenantID, h)
	}
	m.log.Warn("session: connection failed", zap.String("tenant", rec.TenantID), zap.Error(cause))
}

// detachLocked invalidates the current generation, stops its timers, and
// returns the handle for the caller to close.
func (m *Manager) detachLocked(rec *Record) transport.Handle {
	rec.generation++
	m.stopReadyTimerLocked(rec)
	m.stopHeartbeatLocked(rec)
	h := rec.handle
	rec.handle = nil
	rec.pairingCode = ""
	return h
}

func (m *Manager) closeHandle(tenantID string, h transport.Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		m.log.Warn("session: close handle", zap.String("tenant", tenantID), zap.Error(err))
	}
}

func (m *Manager) stopReadyTimerLocked(rec *Record) {
	if rec.readyTimer != nil {
		rec.readyTimer.Stop()
		rec.readyTimer = nil
	}
}

func (m *Manager) startHeartbeatLocked(rec *Record, gen uint64) {
	m.stopHeartbeatLocked(rec)
	ctx, cancel := context.WithCancel(m.ctx)
	rec.stopHeartbeat = cancel
	StartHeartbeat(ctx, m.heartbeatInterval, func(now time.Time) { m.beat(rec, gen, now) })
}

func (m *Manager) stopHeartbeatLocked(rec *Record) {
	if rec.stopHeartbeat != nil {
		rec.stopHeartbeat()
		rec.stopHeartbeat = nil
	}
}

// beat refreshes the advisory stage label. It never changes state.
func (m *Manager) beat(rec *Record, gen uint64, now time.Time) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.generation != gen || !rec.state.Connecting() {
		return
	}
	idle := int(now.Sub(rec.lastActivityAt).Seconds())
	if idle < 0 {
		idle = 0
	}
	rec.stage = fmt.Sprintf("%s (%ds since last activity)", label(rec.state, rec.syncPercent), idle)
}

// transitionLocked moves rec along one edge of the lifecycle graph and queues
// the change for observers. Illegal edges are logged and refused.
func (m *Manager) transitionLocked(rec *Record, to State, trigger, detail string) bool {
	from := rec.state
	if !CanTransition(from, to) {
		m.log.Error("session: refused transition",
			zap.Error(&TransitionError{TenantID: rec.TenantID, From: from, To: to}),
			zap.String("trigger", trigger))
		return false
	}
	now := time.Now()
	rec.state = to
	rec.updatedAt = now
	rec.stage = label(to, rec.syncPercent)

	m.log.Info("session: transition",
		zap.String("tenant", rec.TenantID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("trigger", trigger))

	if len(m.observers) > 0 {
		m.enqueue(Transition{TenantID: rec.TenantID, From: from, To: to, Trigger: trigger, Detail: detail, At: now})
	}
	return true
}

func (m *Manager) enqueue(t Transition) {
	m.outMu.Lock()
	m.outbox = append(m.outbox, t)
	m.outMu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) takeOutbox() []Transition {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	batch := m.outbox
	m.outbox = nil
	return batch
}

func (m *Manager) deliverLoop() {
	defer close(m.delivered)
	for {
		select {
		case <-m.wake:
			for _, t := range m.takeOutbox() {
				m.notify(t)
			}
		case <-m.ctx.Done():
			for _, t := range m.takeOutbox() {
				m.notify(t)
			}
			return
		}
	}
}

func (m *Manager) notify(t Transition) {
	for _, o := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("session: observer panicked",
						zap.String("tenant", t.TenantID),
						zap.Any("panic", r))
				}
			}()
			o.OnTransition(t)
		}()
	}
}
