package lifecycle

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// ErrUnknownExtension is returned for ids the store has never seen
var ErrUnknownExtension = errors.New("unknown extension")

// DefaultEventHistory bounds the app-event history
const DefaultEventHistory = 50

// Action is an intent applied by the store. Components never mutate state
// directly; they dispatch actions.
type Action interface {
	reduce(st *state, now time.Time) error
}

type state struct {
	order       []string
	extensions  map[string]*Extension
	status      map[string]StatusItem
	events      []AppEvent // most recent first
	maxEvents   int
	selected    string
	paletteOpen bool
	consoleOpen bool
}

// Store is the single source of truth for extension state. Dispatch is the
// only writer.
type Store struct {
	clock clock.Clock

	mu       sync.RWMutex
	st       state
	version  uint64
	watchers map[int]func()
	nextW    int
}

// NewStore creates an empty store
func NewStore(clk clock.Clock, eventHistory int) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if eventHistory <= 0 {
		eventHistory = DefaultEventHistory
	}
	return &Store{
		clock: clk,
		st: state{
			extensions: make(map[string]*Extension),
			status:     make(map[string]StatusItem),
			maxEvents:  eventHistory,
		},
		watchers: make(map[int]func()),
	}
}

// Dispatch applies a and notifies watchers when it succeeds
func (s *Store) Dispatch(a Action) error {
	s.mu.Lock()
	err := a.reduce(&s.st, s.clock.Now())
	if err == nil {
		s.version++
	}
	s.mu.Unlock()

	if err == nil {
		s.Notify()
	}
	return err
}

// Watch registers f to run after every change. The returned func removes it.
func (s *Store) Watch(f func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextW++
	key := s.nextW
	s.watchers[key] = f
	return func() {
		s.mu.Lock()
		delete(s.watchers, key)
		s.mu.Unlock()
	}
}

// Notify runs every watcher. Other state holders (notifications, prompts)
// call it so one subscription covers the whole snapshot.
func (s *Store) Notify() {
	s.mu.RLock()
	fs := make([]func(), 0, len(s.watchers))
	for _, f := range s.watchers {
		fs = append(fs, f)
	}
	s.mu.RUnlock()

	for _, f := range fs {
		f()
	}
}

// Version increments on every applied action
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns a copy of one extension
func (s *Store) Get(id string) (Extension, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.st.extensions[id]
	if !ok {
		return Extension{}, false
	}
	return *e, true
}

// List returns copies of all extensions in catalog order
func (s *Store) List() []Extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Extension, 0, len(s.st.order))
	for _, id := range s.st.order {
		out = append(out, *s.st.extensions[id])
	}
	return out
}

// StateOf returns the state of id, or "" when unknown
func (s *Store) StateOf(id string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.st.extensions[id]; ok {
		return e.State
	}
	return ""
}

// Counts returns the number of extensions per state
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(States()))
	for _, e := range s.st.extensions {
		counts[string(e.State)]++
	}
	return counts
}

// Status returns status items of active extensions, highest priority first
func (s *Store) Status() []StatusItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StatusItem, 0, len(s.st.status))
	for extID, item := range s.st.status {
		if e, ok := s.st.extensions[extID]; ok && e.State == StateActive {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ExtID < out[j].ExtID
	})
	return out
}

// Events returns the app-event history, most recent first
func (s *Store) Events() []AppEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AppEvent(nil), s.st.events...)
}

// UI returns the palette and console flags and the selected extension
func (s *Store) UI() (paletteOpen, consoleOpen bool, selected string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.paletteOpen, s.st.consoleOpen, s.st.selected
}

func (st *state) get(id string) (*Extension, error) {
	e, ok := st.extensions[id]
	if !ok {
		return nil, ErrUnknownExtension
	}
	return e, nil
}

// Upsert adds a catalog entry as available, or refreshes the manifest of a
// known extension that is not running.
type Upsert struct {
	Manifest manifest.Manifest
}

func (a Upsert) reduce(st *state, now time.Time) error {
	id := a.Manifest.ID
	if e, ok := st.extensions[id]; ok {
		if !e.State.Live() {
			e.setManifest(a.Manifest)
			e.UpdatedAt = now
		}
		return nil
	}
	e := fromManifest(a.Manifest)
	e.UpdatedAt = now
	st.extensions[id] = &e
	st.order = append(st.order, id)
	return nil
}

// Transition moves an extension along the lifecycle. Err is the failure
// reason when To is StateError.
type Transition struct {
	ExtID string
	To    State
	Err   error
	// Manifest, when set, replaces the stored manifest (fetch results).
	Manifest *manifest.Manifest
}

func (a Transition) reduce(st *state, now time.Time) error {
	e, err := st.get(a.ExtID)
	if err != nil {
		return err
	}
	if !CanTransition(e.State, a.To) {
		return &TransitionError{ExtID: a.ExtID, From: e.State, To: a.To}
	}

	e.State = a.To
	e.UpdatedAt = now
	e.Error, e.ErrorKind = "", ""
	if a.To == StateError && a.Err != nil {
		e.Error = a.Err.Error()
		if kind, ok := faults.KindOf(a.Err); ok {
			e.ErrorKind = kind
		}
	}
	if a.Manifest != nil {
		e.setManifest(*a.Manifest)
	}
	if !a.To.Live() {
		e.HasDocument = false
		delete(st.status, a.ExtID)
	}
	return nil
}

// SetInstalled records whether an install record exists
type SetInstalled struct {
	ExtID     string
	Installed bool
}

func (a SetInstalled) reduce(st *state, now time.Time) error {
	e, err := st.get(a.ExtID)
	if err != nil {
		return err
	}
	e.Installed = a.Installed
	e.UpdatedAt = now
	return nil
}

// SetDocument marks that an iframe document is available
type SetDocument struct {
	ExtID string
}

func (a SetDocument) reduce(st *state, now time.Time) error {
	e, err := st.get(a.ExtID)
	if err != nil {
		return err
	}
	e.HasDocument = e.Kind == manifest.KindIframe && e.State.Live()
	return nil
}

// Select focuses one extension. An empty id clears the selection.
type Select struct {
	ExtID string
}

func (a Select) reduce(st *state, now time.Time) error {
	if a.ExtID != "" {
		if _, err := st.get(a.ExtID); err != nil {
			return err
		}
	}
	if prev, ok := st.extensions[st.selected]; ok {
		prev.Selected = false
	}
	st.selected = a.ExtID
	if e, ok := st.extensions[a.ExtID]; ok {
		e.Selected = true
	}
	return nil
}

// SetStatus replaces an extension's status bar item
type SetStatus struct {
	ExtID    string
	Text     string
	Priority int
}

func (a SetStatus) reduce(st *state, now time.Time) error {
	e, err := st.get(a.ExtID)
	if err != nil {
		return err
	}
	if !e.State.Live() {
		return faults.Newf(faults.Disposed, a.ExtID, "ui.statusBar.setText", "extension is %s", e.State)
	}
	st.status[a.ExtID] = StatusItem{
		ExtID:    a.ExtID,
		Text:     utils.PlainText(a.Text, utils.MaxStatusLength),
		Priority: a.Priority,
	}
	return nil
}

// HideStatus removes an extension's status bar item
type HideStatus struct {
	ExtID string
}

func (a HideStatus) reduce(st *state, now time.Time) error {
	delete(st.status, a.ExtID)
	return nil
}

// RecordEvent prepends an app event to the bounded history
type RecordEvent struct {
	Event AppEvent
}

func (a RecordEvent) reduce(st *state, now time.Time) error {
	st.events = append([]AppEvent{a.Event}, st.events...)
	if len(st.events) > st.maxEvents {
		st.events = st.events[:st.maxEvents]
	}
	return nil
}

// TogglePalette opens or closes the command palette
type TogglePalette struct{}

func (TogglePalette) reduce(st *state, now time.Time) error {
	st.paletteOpen = !st.paletteOpen
	return nil
}

// ClosePalette closes the palette; it is a no-op when already closed
type ClosePalette struct{}

func (ClosePalette) reduce(st *state, now time.Time) error {
	st.paletteOpen = false
	return nil
}

// ToggleConsole opens or closes the developer console
type ToggleConsole struct{}

func (ToggleConsole) reduce(st *state, now time.Time) error {
	st.consoleOpen = !st.consoleOpen
	return nil
}
