package continuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jibbrjabbr/jj/pkg/protocol"
)

type fakeTarget struct {
	id      string
	sent    chan protocol.Message
	done    chan struct{}
	once    sync.Once
	sendErr error
	flushes atomic.Int32
}

func newFakeTarget(id string) *fakeTarget {
	return &fakeTarget{
		id:   id,
		sent: make(chan protocol.Message, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) Send(msg protocol.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent <- msg
	return nil
}

func (f *fakeTarget) Flush() error {
	f.flushes.Add(1)
	return nil
}

func (f *fakeTarget) Done() <-chan struct{} { return f.done }

func (f *fakeTarget) close() { f.once.Do(func() { close(f.done) }) }

// nextRequest waits for the target to receive a request.
func (f *fakeTarget) nextRequest(t *testing.T) protocol.Request {
	t.Helper()
	select {
	case msg := <-f.sent:
		req, ok := msg.(protocol.Request)
		if !ok {
			t.Fatalf("sent %T, want a request", msg)
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return nil
	}
}

type result struct {
	value protocol.Value
	err   error
}

func suspendAsync(s *Scheduler, target Target, req protocol.Request) <-chan result {
	ch := make(chan result, 1)
	go func() {
		v, err := s.Suspend(context.Background(), target, req, nil)
		ch <- result{v, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for suspended call")
		return result{}
	}
}

func TestSuspendResume(t *testing.T) {
	s := New()
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Get{Selector: "#name", Type: "val"})
	req := target.nextRequest(t)
	if !req.RequestID().Valid() {
		t.Fatalf("request id %q is not valid", req.RequestID())
	}
	if target.flushes.Load() == 0 {
		t.Fatal("request was not flushed")
	}

	if err := s.Resume(req.RequestID(), protocol.StringValue("hello")); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("Suspend() error: %v", r.err)
	}
	if got := r.value.String(); got != "hello" {
		t.Fatalf("value=%q, want hello", got)
	}
	if s.Len() != 0 {
		t.Fatalf("Len()=%d after resume, want 0", s.Len())
	}
}

func TestResumeExactlyOnce(t *testing.T) {
	s := New()
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Retrieve{Key: "k"})
	req := target.nextRequest(t)

	if err := s.Resume(req.RequestID(), protocol.Value(`1`)); err != nil {
		t.Fatalf("first Resume() error: %v", err)
	}
	if err := s.Resume(req.RequestID(), protocol.Value(`2`)); !errors.Is(err, ErrUnmatchedReply) {
		t.Fatalf("second Resume() error=%v, want ErrUnmatchedReply", err)
	}
	if r := wait(t, done); r.value.String() != "1" {
		t.Fatalf("value=%s, want 1", r.value)
	}
}

func TestResumeUnknownID(t *testing.T) {
	s := New()
	if err := s.Resume("99", protocol.Value(`"x"`)); !errors.Is(err, ErrUnmatchedReply) {
		t.Fatalf("Resume() error=%v, want ErrUnmatchedReply", err)
	}
}

func TestDiscardOnTargetClose(t *testing.T) {
	s := New()
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Get{Selector: "#x", Type: "text"})
	req := target.nextRequest(t)

	target.close()
	if n := s.DiscardTarget("a"); n > 1 {
		t.Fatalf("DiscardTarget()=%d, want at most 1", n)
	}

	r := wait(t, done)
	if !errors.Is(r.err, ErrConnectionLost) {
		t.Fatalf("Suspend() error=%v, want ErrConnectionLost", r.err)
	}
	if !r.value.IsAbsent() {
		t.Fatalf("discarded call observed value %s", r.value)
	}
	if err := s.Resume(req.RequestID(), protocol.Value(`"late"`)); !errors.Is(err, ErrUnmatchedReply) {
		t.Fatalf("late Resume() error=%v, want ErrUnmatchedReply", err)
	}
}

func TestDiscardTargetWakesWaiter(t *testing.T) {
	s := New()
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Invoke{Name: "f"})
	target.nextRequest(t)

	if n := s.DiscardTarget("a"); n != 1 {
		t.Fatalf("DiscardTarget()=%d, want 1", n)
	}
	if r := wait(t, done); !errors.Is(r.err, ErrConnectionLost) {
		t.Fatalf("Suspend() error=%v, want ErrConnectionLost", r.err)
	}
}

func TestSuspendOnClosedTarget(t *testing.T) {
	s := New()
	target := newFakeTarget("a")
	target.close()

	_, err := s.Suspend(context.Background(), target, &protocol.Get{Selector: "a", Type: "val"}, nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Suspend() error=%v, want ErrConnectionLost", err)
	}
	if len(target.sent) != 0 {
		t.Fatal("request sent to a closed target")
	}
}

func TestSuspendTimeout(t *testing.T) {
	s := New(WithTimeout(20 * time.Millisecond))
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Get{Selector: "#x", Type: "val"})
	req := target.nextRequest(t)

	r := wait(t, done)
	if !errors.Is(r.err, ErrTimeout) {
		t.Fatalf("Suspend() error=%v, want ErrTimeout", r.err)
	}
	if errors.Is(r.err, ErrConnectionLost) {
		t.Fatal("timeout must be distinguishable from connection loss")
	}
	if err := s.Resume(req.RequestID(), protocol.Value(`1`)); !errors.Is(err, ErrUnmatchedReply) {
		t.Fatalf("Resume() after timeout error=%v, want ErrUnmatchedReply", err)
	}
}

func TestSuspendContextCanceled(t *testing.T) {
	s := New()
	target := newFakeTarget("a")
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan result, 1)
	go func() {
		v, err := s.Suspend(ctx, target, &protocol.Get{Selector: "#x", Type: "val"}, nil)
		ch <- result{v, err}
	}()
	target.nextRequest(t)
	cancel()

	if r := wait(t, ch); !errors.Is(r.err, context.Canceled) {
		t.Fatalf("Suspend() error=%v, want context.Canceled", r.err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len()=%d, want 0", s.Len())
	}
}

func TestSuspendSendFailure(t *testing.T) {
	s := New()
	target := newFakeTarget("a")
	target.sendErr = errors.New("boom")

	_, err := s.Suspend(context.Background(), target, &protocol.Get{Selector: "#x", Type: "val"}, nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Suspend() error=%v, want ErrConnectionLost", err)
	}
	if s.Len() != 0 {
		t.Fatalf("Len()=%d after failed send, want 0", s.Len())
	}
}

func TestNextIDMonotonicNonZero(t *testing.T) {
	s := New()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		id := s.NextID()
		var n uint64
		fmt.Sscan(string(id), &n)
		if n <= prev {
			t.Fatalf("id %s not greater than %d", id, prev)
		}
		prev = n
	}
}

func TestOnePendingPerTarget(t *testing.T) {
	s := New()
	target := newFakeTarget("a")

	first := suspendAsync(s, target, &protocol.Get{Selector: "#one", Type: "val"})
	req1 := target.nextRequest(t)
	second := suspendAsync(s, target, &protocol.Get{Selector: "#two", Type: "val"})

	select {
	case msg := <-target.sent:
		t.Fatalf("second request %v sent while first pending", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if n := s.PendingFor("a"); n != 1 {
		t.Fatalf("PendingFor()=%d, want 1", n)
	}

	if err := s.Resume(req1.RequestID(), protocol.StringValue("one")); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	req2 := target.nextRequest(t)
	if err := s.Resume(req2.RequestID(), protocol.StringValue("two")); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}

	if r := wait(t, first); r.value.String() != "one" {
		t.Fatalf("first=%q, want one", r.value.String())
	}
	if r := wait(t, second); r.value.String() != "two" {
		t.Fatalf("second=%q, want two", r.value.String())
	}
}

func TestNoCrossTalk(t *testing.T) {
	s := New()
	const n = 64

	targets := make([]*fakeTarget, n)
	results := make([]<-chan result, n)
	for i := range targets {
		targets[i] = newFakeTarget(fmt.Sprintf("conn-%d", i))
		results[i] = suspendAsync(s, targets[i], &protocol.Get{Selector: "#who", Type: "val"})
	}

	var wg sync.WaitGroup
	for i, target := range targets {
		req := target.nextRequest(t)
		wg.Add(1)
		go func(i int, id protocol.ID) {
			defer wg.Done()
			if err := s.Resume(id, protocol.StringValue(fmt.Sprintf("conn-%d", i))); err != nil {
				t.Errorf("Resume(%s) error: %v", id, err)
			}
		}(i, req.RequestID())
	}
	wg.Wait()

	for i, ch := range results {
		r := wait(t, ch)
		if want := fmt.Sprintf("conn-%d", i); r.value.String() != want {
			t.Fatalf("target %d got %q, want %q", i, r.value.String(), want)
		}
	}
}

type recordingYielder struct {
	mu    sync.Mutex
	calls []string
}

func (y *recordingYielder) Yield() {
	y.mu.Lock()
	y.calls = append(y.calls, "yield")
	y.mu.Unlock()
}

func (y *recordingYielder) Reacquire(context.Context) error {
	y.mu.Lock()
	y.calls = append(y.calls, "reacquire")
	y.mu.Unlock()
	return nil
}

func TestSuspendYieldsAndReacquires(t *testing.T) {
	s := New()
	target := newFakeTarget("a")
	y := &recordingYielder{}

	ch := make(chan result, 1)
	go func() {
		v, err := s.Suspend(context.Background(), target, &protocol.Get{Selector: "#x", Type: "val"}, y)
		ch <- result{v, err}
	}()
	req := target.nextRequest(t)

	y.mu.Lock()
	if len(y.calls) != 1 || y.calls[0] != "yield" {
		t.Fatalf("calls before resume=%v, want [yield]", y.calls)
	}
	y.mu.Unlock()

	s.Resume(req.RequestID(), protocol.Value(`true`))
	wait(t, ch)

	y.mu.Lock()
	defer y.mu.Unlock()
	if len(y.calls) != 2 || y.calls[1] != "reacquire" {
		t.Fatalf("calls=%v, want [yield reacquire]", y.calls)
	}
}

type countingObserver struct {
	suspended, resumed, discarded, unmatched atomic.Int32
}

func (o *countingObserver) Suspended(protocol.Kind)              { o.suspended.Add(1) }
func (o *countingObserver) Resumed(protocol.Kind, time.Duration) { o.resumed.Add(1) }
func (o *countingObserver) Discarded(protocol.Kind, error)       { o.discarded.Add(1) }
func (o *countingObserver) Unmatched()                           { o.unmatched.Add(1) }

func TestObserver(t *testing.T) {
	o := &countingObserver{}
	s := New(WithObserver(o))
	target := newFakeTarget("a")

	done := suspendAsync(s, target, &protocol.Get{Selector: "#x", Type: "val"})
	req := target.nextRequest(t)
	s.Resume(req.RequestID(), protocol.Value(`1`))
	wait(t, done)
	s.Resume(req.RequestID(), protocol.Value(`1`))

	done = suspendAsync(s, target, &protocol.Get{Selector: "#y", Type: "val"})
	target.nextRequest(t)
	s.DiscardTarget("a")
	wait(t, done)

	if o.suspended.Load() != 2 || o.resumed.Load() != 1 || o.discarded.Load() != 1 || o.unmatched.Load() != 1 {
		t.Fatalf("observer counts suspended=%d resumed=%d discarded=%d unmatched=%d, want 2 1 1 1",
			o.suspended.Load(), o.resumed.Load(), o.discarded.Load(), o.unmatched.Load())
	}
}

func TestSlotsReleasedForClosedTargets(t *testing.T) {
	s := New()

	live := newFakeTarget("live")
	if _, err := s.slot(live); err != nil {
		t.Fatalf("slot(live) err=%v", err)
	}
	live.close()
	s.DiscardTarget(live.ID())

	// A suspension that passed its first liveness check before the close
	// must not bring the slot back.
	if _, err := s.slot(live); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("slot(closed) err=%v, want ErrConnectionLost", err)
	}
	if _, err := s.Suspend(context.Background(), live, &protocol.Get{Selector: "#a", Type: "val"}, nil); !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Suspend err=%v, want ErrConnectionLost", err)
	}

	s.mu.Lock()
	n := len(s.slots)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("slots=%d, want 0", n)
	}
}
