package lifecycle

import (
	"fmt"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
)

// State represents extension lifecycle states
type State string

const (
	StateAvailable  State = "available"
	StateFetching   State = "fetching"
	StateActivating State = "activating"
	StateActive     State = "active"
	StateError      State = "error"
	StateInactive   State = "inactive"
)

// States lists every state in lifecycle order
func States() []State {
	return []State{StateAvailable, StateFetching, StateActivating, StateActive, StateError, StateInactive}
}

// transitions is the lifecycle graph. error and inactive only move on
// user action.
var transitions = map[State][]State{
	StateAvailable:  {StateFetching},
	StateFetching:   {StateActivating, StateError, StateInactive},
	StateActivating: {StateActive, StateError, StateInactive},
	StateActive:     {StateInactive, StateError},
	StateError:      {StateFetching, StateInactive},
	StateInactive:   {StateFetching, StateAvailable},
}

// CanTransition reports whether from -> to is an edge of the lifecycle
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Live reports whether an extension in s has a sandbox that may talk to
// the host.
func (s State) Live() bool {
	return s == StateActivating || s == StateActive
}

// TransitionError is an illegal state change
type TransitionError struct {
	ExtID string
	From  State
	To    State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.ExtID, e.From, e.To)
}

// Extension is the host-local runtime state of one extension
type Extension struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Version     string                `json:"version"`
	Author      string                `json:"author"`
	Icon        string                `json:"icon,omitempty"`
	Description string                `json:"description,omitempty"`
	Kind        manifest.Kind         `json:"kind"`
	Slot        manifest.Slot         `json:"slot,omitempty"`
	Permissions []manifest.Permission `json:"permissions"`
	State       State                 `json:"state"`
	Error       string                `json:"error,omitempty"`
	ErrorKind   faults.Kind           `json:"errorKind,omitempty"`
	Installed   bool                  `json:"installed"`
	Selected    bool                  `json:"selected"`
	HasDocument bool                  `json:"hasDocument"`
	UpdatedAt   time.Time             `json:"updatedAt"`

	Manifest manifest.Manifest `json:"-"`
}

func fromManifest(m manifest.Manifest) Extension {
	e := Extension{State: StateAvailable}
	e.setManifest(m)
	return e
}

func (e *Extension) setManifest(m manifest.Manifest) {
	e.ID = m.ID
	e.Name = m.Name
	e.Version = m.Version
	e.Author = m.Author
	e.Icon = m.Icon
	e.Description = m.Description
	e.Kind = m.Kind
	e.Slot = m.MountSlot()
	e.Permissions = append([]manifest.Permission(nil), m.Permissions...)
	e.Manifest = m.Clone()
}

// StatusItem is one extension's status bar entry
type StatusItem struct {
	ExtID    string `json:"extId"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// AppEvent is one events.emit broadcast, kept for the console
type AppEvent struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
	Source  string      `json:"source"`
	TS      int64       `json:"ts"`
}
