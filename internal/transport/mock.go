package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTransport implements Transport for testing. Every Open returns a new
// MockHandle that tests drive with Emit.
type MockTransport struct {
	mu      sync.Mutex
	handles []*MockHandle
	opens   map[string]int
	openErr error
	gate    chan struct{} // when non-nil, Open blocks until it is closed
	opened  chan *MockHandle
}

// NewMockTransport creates a MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		opens:  make(map[string]int),
		opened: make(chan *MockHandle, 100),
	}
}

// Open records the call and returns a fresh MockHandle.
func (m *MockTransport) Open(ctx context.Context, tenantID string) (Handle, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[tenantID]++
	if m.openErr != nil {
		return nil, m.openErr
	}
	h := newMockHandle(tenantID)
	m.handles = append(m.handles, h)
	m.opened <- h
	return h, nil
}

// --- Test helpers ---

// SetOpenError makes subsequent Opens fail with err.
func (m *MockTransport) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// HoldOpens makes Open block until the returned release func is called.
func (m *MockTransport) HoldOpens() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.gate = nil
			m.mu.Unlock()
			close(gate)
		})
	}
}

// OpenCount returns how many times Open was called for tenantID.
func (m *MockTransport) OpenCount(tenantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[tenantID]
}

// Handles returns every handle created so far.
func (m *MockTransport) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockHandle, len(m.handles))
	copy(out, m.handles)
	return out
}

// WaitHandle blocks until the next handle is opened or the timeout elapses.
func (m *MockTransport) WaitHandle(timeout time.Duration) (*MockHandle, error) {
	select {
	case h := <-m.opened:
		return h, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("mock transport: no handle opened within %v", timeout)
	}
}

// MockHandle implements Handle and Unlinker for testing.
type MockHandle struct {
	TenantID string

	mu       sync.Mutex
	events   chan Event
	done     chan struct{}
	closed   bool
	closes   int
	unlinked bool
	sent     []SentMessage
	sendErrs map[string]error
}

// SentMessage is one message recorded by MockHandle.Send.
type SentMessage struct {
	Recipient string
	Text      string
}

func newMockHandle(tenantID string) *MockHandle {
	return &MockHandle{
		TenantID: tenantID,
		events:   make(chan Event, 100),
		done:     make(chan struct{}),
		sendErrs: make(map[string]error),
	}
}

// Events returns the event stream.
func (h *MockHandle) Events() <-chan Event { return h.events }

// Done is closed by Close.
func (h *MockHandle) Done() <-chan struct{} { return h.done }

// Send records the message, or fails with the error configured for recipient.
func (h *MockHandle) Send(ctx context.Context, recipient, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return &SendError{Recipient: recipient, Err: fmt.Errorf("mock handle: closed")}
	}
	if err, ok := h.sendErrs[recipient]; ok {
		return &SendError{Recipient: recipient, Err: err}
	}
	h.sent = append(h.sent, SentMessage{Recipient: recipient, Text: text})
	return nil
}

// Close marks the handle closed. Safe to call more than once.
func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.done)
	return nil
}

// Unlink records that the device was logged out.
func (h *MockHandle) Unlink(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unlinked = true
	return nil
}

// --- Test helpers ---

// Emit delivers ev to the event stream as if the client raised it.
func (h *MockHandle) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case h.events <- ev:
	case <-h.done:
	}
}

// FailSendsTo makes every Send to recipient fail with err.
func (h *MockHandle) FailSendsTo(recipient string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErrs[recipient] = err
}

// Sent returns a copy of every recorded message.
func (h *MockHandle) Sent() []SentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SentMessage, len(h.sent))
	copy(out, h.sent)
	return out
}

// Closed reports whether Close has been called.
func (h *MockHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Unlinked reports whether Unlink has been called.
func (h *MockHandle) Unlinked() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unlinked
}
