package session

import "time"

// Transition is one applied state change.
type Transition struct {
	TenantID string
	From     State
	To       State
	Trigger  string // what caused it, e.g. "ensure_connected", "ready_timeout"
	Detail   string // error text or disconnect reason, if any
	At       time.Time
}

// Observer receives applied transitions. Calls happen on a single goroutine
// in application order and never while a record lock is held, so observers
// may block briefly but must not call back into the Manager's mutators.
type Observer interface {
	OnTransition(Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Transition)

func (f ObserverFunc) OnTransition(t Transition) { f(t) }
