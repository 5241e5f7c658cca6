// Package session supervises one chat-network connection per tenant: the
// lifecycle state machine, its timers, startup reattachment, and the status
// view polled by the UI.
package session

import "fmt"

// State is a tenant connection's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateWaitingForPairing
	StateAuthenticating
	StateReady
	StateFailed
	StateDisconnected
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateInitializing:      "initializing",
	StateWaitingForPairing: "waiting_for_pairing",
	StateAuthenticating:    "authenticating",
	StateReady:             "ready",
	StateFailed:            "failed",
	StateDisconnected:      "disconnected",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st, n := range stateNames {
		if n == s {
			return st, nil
		}
	}
	return StateIdle, fmt.Errorf("session: unknown state %q", s)
}

// Connecting reports whether a connection attempt is in flight.
func (s State) Connecting() bool {
	return s == StateInitializing || s == StateWaitingForPairing || s == StateAuthenticating
}

// Terminal reports whether the state needs an explicit retry to leave.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateDisconnected
}

// transitions lists the legal edges of the lifecycle graph.
var transitions = map[State][]State{
	StateIdle:              {StateInitializing},
	StateInitializing:      {StateWaitingForPairing, StateAuthenticating, StateFailed, StateDisconnected},
	StateWaitingForPairing: {StateAuthenticating, StateFailed, StateDisconnected},
	StateAuthenticating:    {StateReady, StateFailed, StateDisconnected},
	StateReady:             {StateFailed, StateDisconnected},
	StateFailed:            {StateInitializing, StateDisconnected},
	StateDisconnected:      {StateInitializing},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// label is the human-readable progress text for a state.
func label(s State, syncPercent int) string {
	switch s {
	case StateInitializing:
		return "Starting WhatsApp client"
	case StateWaitingForPairing:
		return "Waiting for QR code scan"
	case StateAuthenticating:
		if syncPercent > 0 {
			return fmt.Sprintf("Syncing history (%d%%)", syncPercent)
		}
		return "Authenticated, syncing"
	case StateReady:
		return "Connected"
	case StateFailed:
		return "Connection failed"
	case StateDisconnected:
		return "Disconnected"
	}
	return "Not connected"
}
