// Package notify is the host notification stack. Entries are newest first,
// never deduplicated, and leave either by dismissal or by expiring after the
// configured TTL.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/id"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// Kind is the notification severity.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// ParseKind accepts the four kinds; empty means info.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return KindInfo, nil
	case KindInfo, KindSuccess, KindWarning, KindError:
		return k, nil
	default:
		return "", fmt.Errorf("unknown notification kind %q", s)
	}
}

// Entry is one visible notification.
type Entry struct {
	ID        id.NotificationID `json:"id"`
	ExtID     string            `json:"extId"`
	Message   string            `json:"message"`
	Kind      Kind              `json:"kind"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Queue is safe for concurrent use.
type Queue struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	entries  []Entry
	timers   map[id.NotificationID]clock.Timer
	onChange func()
}

// NewQueue creates a queue. A zero ttl keeps entries until dismissed.
func NewQueue(clk clock.Clock, ttl time.Duration) *Queue {
	if clk == nil {
		clk = clock.Real()
	}
	return &Queue{clock: clk, ttl: ttl, timers: make(map[id.NotificationID]clock.Timer)}
}

// OnChange sets a hook run after expiry removes an entry. Push and Dismiss
// callers already know the queue changed.
func (q *Queue) OnChange(f func()) {
	q.mu.Lock()
	q.onChange = f
	q.mu.Unlock()
}

// Push prepends a notification.
func (q *Queue) Push(extID, message string, kind Kind) Entry {
	e := Entry{
		ID:        id.NewNotificationID(),
		ExtID:     extID,
		Message:   utils.PlainText(message, utils.MaxNotificationLength),
		Kind:      kind,
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append([]Entry{e}, q.entries...)
	if q.ttl > 0 {
		nid := e.ID
		q.timers[nid] = q.clock.AfterFunc(q.ttl, func() { q.expire(nid) })
	}
	return e
}

func (q *Queue) expire(nid id.NotificationID) {
	q.mu.Lock()
	removed := q.remove(nid)
	hook := q.onChange
	q.mu.Unlock()

	if removed && hook != nil {
		hook()
	}
}

// remove requires q.mu.
func (q *Queue) remove(nid id.NotificationID) bool {
	if t, ok := q.timers[nid]; ok {
		t.Stop()
		delete(q.timers, nid)
	}
	for i, e := range q.entries {
		if e.ID == nid {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Dismiss removes one notification by id.
func (q *Queue) Dismiss(nid id.NotificationID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remove(nid)
}

// List returns the entries, newest first.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Reset clears everything, as on a new host session.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[id.NotificationID]clock.Timer)
	q.entries = nil
}
