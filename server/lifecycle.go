package server

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State is one of the three lifecycle strings Server.Status reports.
type State string

const (
	StateClosed  State = "CLOSED"
	StateRunning State = "RUNNING"
	StateClosing State = "CLOSING"
)

const (
	triggerUp    = "up"
	triggerClose = "close"
	triggerDown  = "down"
)

// lifecycle drives the CLOSED -> RUNNING -> CLOSING -> CLOSED transitions
// of §4.6's graceful shutdown contract using a declarative state machine,
// instead of hand-rolled state fields and locks.
type lifecycle struct {
	sm *stateless.StateMachine
}

func newLifecycle() *lifecycle {
	sm := stateless.NewStateMachine(StateClosed)
	sm.Configure(StateClosed).
		Permit(triggerUp, StateRunning)
	sm.Configure(StateRunning).
		Permit(triggerClose, StateClosing)
	sm.Configure(StateClosing).
		Permit(triggerDown, StateClosed)
	return &lifecycle{sm: sm}
}

func (l *lifecycle) state() State {
	return l.sm.MustState().(State)
}

func (l *lifecycle) fire(ctx context.Context, trigger string) error {
	return l.sm.FireCtx(ctx, trigger)
}
