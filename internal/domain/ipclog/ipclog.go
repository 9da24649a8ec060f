// Package ipclog is the append-only bridge message log shown in the
// developer console. It keeps the most recent entries up to a fixed
// retention; older entries are dropped from the front.
package ipclog

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// DefaultRetention is the number of entries kept when none is configured.
const DefaultRetention = 200

// Direction of a logged message.
type Direction string

const (
	// Out is extension to host.
	Out Direction = "out"
	// In is host to extension.
	In Direction = "in"
	// Host is a host-internal event recorded for audit only.
	Host Direction = "host"
)

// Entry is one logged message. TS is milliseconds since the session started.
type Entry struct {
	Seq       uint64      `json:"seq"`
	Direction Direction   `json:"direction"`
	ExtID     string      `json:"extId"`
	Event     string      `json:"event"`
	Args      interface{} `json:"args,omitempty"`
	CallID    string      `json:"callId,omitempty"`
	Error     string      `json:"error,omitempty"`
	TS        int64       `json:"ts"`
}

// Log is a bounded ring of entries.
type Log struct {
	clock clock.Clock
	start time.Time

	mu      sync.RWMutex
	seq     uint64
	buf     []Entry
	head    int // index of the oldest entry once full
	full    bool
	onWrite func(Entry)
}

// New creates a log keeping at most retention entries.
func New(clk clock.Clock, retention int) *Log {
	if clk == nil {
		clk = clock.Real()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{clock: clk, start: clk.Now(), buf: make([]Entry, 0, retention)}
}

// OnWrite sets a hook called after every append, outside the lock.
func (l *Log) OnWrite(f func(Entry)) {
	l.mu.Lock()
	l.onWrite = f
	l.mu.Unlock()
}

// Now returns the current session timestamp in milliseconds.
func (l *Log) Now() int64 {
	return l.clock.Now().Sub(l.start).Milliseconds()
}

// Append stamps e with a sequence number and timestamp and records it.
func (l *Log) Append(e Entry) Entry {
	ts := l.Now()

	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.TS = ts

	if !l.full {
		l.buf = append(l.buf, e)
		l.full = len(l.buf) == cap(l.buf)
	} else {
		l.buf[l.head] = e
		l.head = (l.head + 1) % len(l.buf)
	}
	hook := l.onWrite
	l.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return e
}

// Entries returns logged entries oldest first. A non-empty extID keeps only
// that extension's entries.
func (l *Log) Entries(extID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.buf))
	for i := 0; i < len(l.buf); i++ {
		e := l.buf[(l.head+i)%len(l.buf)]
		if extID == "" || e.ExtID == extID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

// Total returns how many entries were ever appended.
func (l *Log) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}
