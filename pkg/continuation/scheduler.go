package continuation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

// Target is the connection a suspended call is sent to and waits on.
type Target interface {
	// ID identifies the connection.
	ID() string

	// Send queues a message for the connection.
	Send(msg protocol.Message) error

	// Flush writes queued messages to the client.
	Flush() error

	// Done is closed when the connection closes.
	Done() <-chan struct{}
}

// Yielder is implemented by the execution that owns a logical thread. Yield
// is called before the thread parks so the owner can run other work;
// Reacquire is called after the call ends and blocks until the thread may
// continue.
type Yielder interface {
	Yield()
	Reacquire(ctx context.Context) error
}

// Observer receives scheduler events, typically for metrics.
type Observer interface {
	Suspended(kind protocol.Kind)
	Resumed(kind protocol.Kind, waited time.Duration)
	Discarded(kind protocol.Kind, reason error)
	Unmatched()
}

type noopObserver struct{}

func (noopObserver) Suspended(protocol.Kind)              {}
func (noopObserver) Resumed(protocol.Kind, time.Duration) {}
func (noopObserver) Discarded(protocol.Kind, error)       {}
func (noopObserver) Unmatched()                           {}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds how long a call may stay pending. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the observer notified of scheduler events.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// Scheduler correlates outbound requests with inbound replies.
// It is safe for concurrent use.
type Scheduler struct {
	seq atomic.Uint64

	mu      sync.Mutex
	pending map[protocol.ID]*Pending
	slots   map[string]chan struct{}

	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		pending:  make(map[protocol.ID]*Pending),
		slots:    make(map[string]chan struct{}),
		logger:   slog.Default().With("component", "continuation"),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextID allocates a correlation ID. IDs increase monotonically and are
// never zero.
func (s *Scheduler) NextID() protocol.ID {
	return protocol.FormatID(s.seq.Add(1))
}

// Suspend sends req to target and blocks until the client answers, the
// target closes, the timeout elapses, or ctx ends. y may be nil.
func (s *Scheduler) Suspend(ctx context.Context, target Target, req protocol.Request, y Yielder) (value protocol.Value, err error) {
	if target == nil {
		return nil, ErrNoTarget
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-target.Done():
		return nil, ErrConnectionLost
	default:
	}

	if y != nil {
		y.Yield()
		defer func() {
			if rerr := y.Reacquire(ctx); rerr != nil && err == nil {
				value, err = nil, rerr
			}
		}()
	}

	slot, err := s.slot(target)
	if err != nil {
		return nil, err
	}
	select {
	case slot <- struct{}{}:
	case <-target.Done():
		return nil, ErrConnectionLost
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-slot }()

	id := s.NextID()
	req.SetRequestID(id)
	p := newPending(id, target.ID(), req.Kind())

	s.mu.Lock()
	s.pending[id] = p
	s.mu.Unlock()

	if err := target.Send(req); err != nil {
		s.abandon(p, ErrConnectionLost)
		return nil, fmt.Errorf("%w: send %s: %v", ErrConnectionLost, req.Kind(), err)
	}
	if err := target.Flush(); err != nil {
		s.abandon(p, ErrConnectionLost)
		return nil, fmt.Errorf("%w: flush %s: %v", ErrConnectionLost, req.Kind(), err)
	}
	s.observer.Suspended(p.Kind)

	var expired <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	var reason error
	select {
	case out := <-p.ch:
		return out.value, out.err
	case <-target.Done():
		reason = ErrConnectionLost
	case <-expired:
		reason = fmt.Errorf("%w: %s %s after %s", ErrTimeout, p.Kind, id, s.timeout)
	case <-ctx.Done():
		reason = ctx.Err()
	}

	if !s.abandon(p, reason) {
		// A reply won the race.
		out := <-p.ch
		return out.value, out.err
	}
	out := <-p.ch
	return nil, out.err
}

// Resume delivers value to the call waiting on id.
func (s *Scheduler) Resume(id protocol.ID, value protocol.Value) error {
	s.mu.Lock()
	p := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if p == nil || !p.settle(StateResumed, outcome{value: value.Clone()}) {
		s.observer.Unmatched()
		s.logger.Warn("attempting to resume a non-existent continuation", "id", id)
		return fmt.Errorf("%w: %s", ErrUnmatchedReply, id)
	}
	s.observer.Resumed(p.Kind, time.Since(p.CreatedAt))
	return nil
}

// DiscardTarget ends every call pending on the target with
// ErrConnectionLost and returns how many were discarded.
func (s *Scheduler) DiscardTarget(targetID string) int {
	s.mu.Lock()
	var doomed []*Pending
	for id, p := range s.pending {
		if p.TargetID == targetID {
			doomed = append(doomed, p)
			delete(s.pending, id)
		}
	}
	delete(s.slots, targetID)
	s.mu.Unlock()

	n := 0
	for _, p := range doomed {
		if p.settle(StateDiscarded, outcome{err: ErrConnectionLost}) {
			s.observer.Discarded(p.Kind, ErrConnectionLost)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("discarded pending calls", "target", targetID, "count", n)
	}
	return n
}

// Len returns the number of pending calls.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// PendingFor returns the number of calls pending on a target.
func (s *Scheduler) PendingFor(targetID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.pending {
		if p.TargetID == targetID {
			n++
		}
	}
	return n
}

// abandon removes p and settles it as discarded. It reports false if p had
// already ended.
func (s *Scheduler) abandon(p *Pending, reason error) bool {
	s.mu.Lock()
	if s.pending[p.ID] == p {
		delete(s.pending, p.ID)
	}
	s.mu.Unlock()

	if !p.settle(StateDiscarded, outcome{err: reason}) {
		return false
	}
	s.observer.Discarded(p.Kind, reason)
	return true
}

// slot returns the request slot of target. Once the target is done the
// slot may already have been dropped by DiscardTarget, so none is created.
func (s *Scheduler) slot(target Target) (chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-target.Done():
		return nil, ErrConnectionLost
	default:
	}
	slot, ok := s.slots[target.ID()]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[target.ID()] = slot
	}
	return slot, nil
}
