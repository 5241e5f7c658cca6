package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned when an operation needs a ready session and
// the tenant has none.
var ErrNotConnected = errors.New("session: not connected")

// ConnectionError reports that the transport could not be opened.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthFailure reports that pairing was rejected, expired, or revoked.
type AuthFailure struct {
	Reason string
}

func (e *AuthFailure) Error() string { return "authentication failed: " + e.Reason }

// SyncTimeout reports that an authenticated session never became ready.
type SyncTimeout struct {
	After time.Duration
}

func (e *SyncTimeout) Error() string {
	return fmt.Sprintf("sync timeout: session not ready within %s", e.After)
}

// TransitionError reports an attempt to leave the lifecycle graph.
type TransitionError struct {
	TenantID string
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: %s: invalid transition %s -> %s", e.TenantID, e.From, e.To)
}
