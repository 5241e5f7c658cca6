// Package transport defines the contract between the session lifecycle
// manager and a chat-network client, plus the per-tenant credential layout.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Transport opens one connection per tenant. Implementations must return
// quickly: the long-running connect / pair / sync work happens in the
// background and is reported through the handle's event stream.
type Transport interface {
	// Open creates a handle for tenantID using the tenant's credential
	// namespace. The returned handle owns all underlying resources.
	Open(ctx context.Context, tenantID string) (Handle, error)
}

// Handle is a live connection for a single tenant.
type Handle interface {
	// Events delivers normalized events in the order the client raised them.
	// The channel is never closed; select on Done to stop reading.
	Events() <-chan Event

	// Done is closed once Close has been called.
	Done() <-chan struct{}

	// Send delivers a text message to recipient (country code + national
	// number, digits only). Failures are reported as *SendError.
	Send(ctx context.Context, recipient, text string) error

	// Close releases every underlying resource. Closing twice is a no-op.
	Close() error
}

// Unlinker is an optional interface for handles that can log the linked
// device out of the network before credentials are purged.
type Unlinker interface {
	Unlink(ctx context.Context) error
}

// EventKind enumerates the normalized transport events.
type EventKind int

const (
	EventPairingAvailable EventKind = iota + 1
	EventAuthenticated
	EventReady
	EventAuthFailed
	EventDisconnected
	EventSyncProgress
	EventConnectFailed
)

var eventKindNames = map[EventKind]string{
	EventPairingAvailable: "pairing_available",
	EventAuthenticated:    "authenticated",
	EventReady:            "ready",
	EventAuthFailed:       "auth_failed",
	EventDisconnected:     "disconnected",
	EventSyncProgress:     "sync_progress",
	EventConnectFailed:    "connect_failed",
}

func (k EventKind) String() string {
	if s, ok := eventKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is one normalized transport event.
type Event struct {
	Kind    EventKind
	Payload string    // pairing code for EventPairingAvailable
	Reason  string    // failure / disconnect reason
	Percent int       // 0-100 for EventSyncProgress
	At      time.Time // when the client raised it
}

// PairingAvailable builds an EventPairingAvailable.
func PairingAvailable(code string) Event {
	return Event{Kind: EventPairingAvailable, Payload: code, At: time.Now()}
}

// Authenticated builds an EventAuthenticated.
func Authenticated() Event { return Event{Kind: EventAuthenticated, At: time.Now()} }

// Ready builds an EventReady.
func Ready() Event { return Event{Kind: EventReady, At: time.Now()} }

// AuthFailed builds an EventAuthFailed.
func AuthFailed(reason string) Event {
	return Event{Kind: EventAuthFailed, Reason: reason, At: time.Now()}
}

// ConnectFailed builds an EventConnectFailed: the network could not be
// reached, as opposed to the account being rejected.
func ConnectFailed(reason string) Event {
	return Event{Kind: EventConnectFailed, Reason: reason, At: time.Now()}
}

// Disconnected builds an EventDisconnected.
func Disconnected(reason string) Event {
	return Event{Kind: EventDisconnected, Reason: reason, At: time.Now()}
}

// SyncProgress builds an EventSyncProgress, clamping percent to 0-100.
func SyncProgress(percent int) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Kind: EventSyncProgress, Percent: percent, At: time.Now()}
}

// SendError reports a transport-level failure to deliver one message.
type SendError struct {
	Recipient string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
