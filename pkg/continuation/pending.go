package continuation

import (
	"sync/atomic"
	"time"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// State is the lifecycle position of a pending call.
type State uint32

const (
	StateSent      State = iota + 1 // request sent, waiting
	StateResumed                    // reply delivered
	StateDiscarded                  // ended without a reply
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateSent:
		return "Sent"
	case StateResumed:
		return "Resumed"
	case StateDiscarded:
		return "Discarded"
	default:
		return "Unknown"
	}
}

// Pending is one suspended call awaiting its reply.
type Pending struct {
	ID        protocol.ID
	TargetID  string
	Kind      protocol.Kind
	CreatedAt time.Time

	state atomic.Uint32
	ch    chan outcome
}

type outcome struct {
	value protocol.Value
	err   error
}

func newPending(id protocol.ID, targetID string, kind protocol.Kind) *Pending {
	p := &Pending{
		ID:        id,
		TargetID:  targetID,
		Kind:      kind,
		CreatedAt: time.Now(),
		ch:        make(chan outcome, 1),
	}
	p.state.Store(uint32(StateSent))
	return p
}

// State returns the current state.
func (p *Pending) State() State {
	return State(p.state.Load())
}

// settle moves the call out of StateSent and delivers out. It reports false
// if the call had already ended.
func (p *Pending) settle(to State, out outcome) bool {
	if !p.state.CompareAndSwap(uint32(StateSent), uint32(to)) {
		return false
	}
	p.ch <- out
	return true
}
