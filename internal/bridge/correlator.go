package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// Future is a pending call. It completes exactly once.
type Future struct {
	ID    string
	Event string
	done  chan Envelope
}

// Done delivers the reply, possibly a synthesized Timeout or Disposed one.
func (f *Future) Done() <-chan Envelope {
	return f.done
}

// Wait blocks for the reply and returns its result or error.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case reply := <-f.done:
		return Outcome(reply)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type pendingCall struct {
	future *Future
	timer  clock.Timer
}

// Correlator matches replies to pending calls by id.
type Correlator struct {
	extID     string
	clock     clock.Clock
	timeout   time.Duration
	onAbandon func(id, event string)

	mu       sync.Mutex
	pending  map[string]*pendingCall
	onSettle func(reply Envelope)
}

// NewCorrelator creates a correlator whose calls time out after timeout.
// onAbandon, if set, runs for every call that timed out.
func NewCorrelator(extID string, clk clock.Clock, timeout time.Duration, onAbandon func(id, event string)) *Correlator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Correlator{
		extID:     extID,
		clock:     clk,
		timeout:   timeout,
		onAbandon: onAbandon,
		pending:   make(map[string]*pendingCall),
	}
}

// OnSettle sets a hook run with every reply a call completes with, including
// synthesized Timeout and Disposed ones. The hook runs after Done delivers.
func (c *Correlator) OnSettle(f func(reply Envelope)) {
	c.mu.Lock()
	c.onSettle = f
	c.mu.Unlock()
}

func (c *Correlator) settle(p *pendingCall, reply Envelope) {
	p.future.done <- reply
	c.mu.Lock()
	hook := c.onSettle
	c.mu.Unlock()
	if hook != nil {
		hook(reply)
	}
}

// Open registers a call. Reusing the id of a call still pending fails the
// earlier one as a protocol violation.
func (c *Correlator) Open(id, event string) *Future {
	f := &Future{ID: id, Event: event, done: make(chan Envelope, 1)}

	c.mu.Lock()
	prev := c.pending[id]
	p := &pendingCall{future: f}
	c.pending[id] = p
	if c.timeout > 0 {
		p.timer = c.clock.AfterFunc(c.timeout, func() { c.expire(id, p) })
	}
	c.mu.Unlock()

	if prev != nil {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		c.settle(prev, Fail(Envelope{ExtID: c.extID, Event: prev.future.Event, ID: id},
			faults.Newf(faults.ProtocolViolation, c.extID, prev.future.Event, "call id %s reused", id), 0))
	}
	return f
}

func (c *Correlator) take(id string, want *pendingCall) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok || (want != nil && p != want) {
		return nil
	}
	delete(c.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (c *Correlator) expire(id string, p *pendingCall) {
	if c.take(id, p) == nil {
		return
	}
	call := Envelope{ExtID: c.extID, Event: p.future.Event, ID: id}
	c.settle(p, Fail(call, faults.Newf(faults.Timeout, c.extID, p.future.Event, "no reply within %s", c.timeout), 0))
	if c.onAbandon != nil {
		c.onAbandon(id, p.future.Event)
	}
}

// Resolve completes the call matching reply.ID. It reports false for late or
// unknown replies, which are dropped.
func (c *Correlator) Resolve(reply Envelope) bool {
	if reply.ID == "" {
		return false
	}
	p := c.take(reply.ID, nil)
	if p == nil {
		return false
	}
	c.settle(p, reply)
	return true
}

// DisposeAll fails every pending call with Disposed and returns how many
// there were.
func (c *Correlator) DisposeAll() int {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for id, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		call := Envelope{ExtID: c.extID, Event: p.future.Event, ID: id}
		c.settle(p, Fail(call, faults.New(faults.Disposed, c.extID, p.future.Event, fmt.Errorf("extension deactivated")), 0))
	}
	return len(pending)
}

// Len returns the number of pending calls.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
