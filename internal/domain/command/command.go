// Package command holds the command palette's command registry.
//
// The palette always lists builtin commands first, followed by live commands
// in registration order. Command ids are advisory: two registrations with the
// same id, from one extension or several, are both kept and are told apart
// by their owning extension.
package command

import (
	"sync"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// HostID owns the builtin commands.
const HostID = "host"

// Builtin command ids.
const (
	RefreshID = "__refresh"
	ConsoleID = "__console"
)

// Command is one palette entry.
type Command struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ExtensionID string `json:"extensionId"`
}

// Builtin reports whether the host handles c directly.
func (c Command) Builtin() bool {
	return c.ExtensionID == HostID
}

// Builtins returns the host's own commands.
func Builtins() []Command {
	return []Command{
		{ID: RefreshID, Title: "Refresh data", ExtensionID: HostID},
		{ID: ConsoleID, Title: "Toggle extension console", ExtensionID: HostID},
	}
}

// Registry stores live extension commands.
type Registry struct {
	mu   sync.RWMutex
	live []Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a command. Titles are reduced to plain text; an empty title
// falls back to the id.
func (r *Registry) Register(extID, id, title string) Command {
	title = utils.PlainText(title, utils.MaxTitleLength)
	if title == "" {
		title = id
	}
	c := Command{ID: id, Title: title, ExtensionID: extID}

	r.mu.Lock()
	r.live = append(r.live, c)
	r.mu.Unlock()
	return c
}

// Unregister removes the oldest command registered by extID under id.
func (r *Registry) Unregister(extID, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.live {
		if c.ExtensionID == extID && c.ID == id {
			r.live = append(r.live[:i], r.live[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveExtension drops every command owned by extID and returns how many
// were removed.
func (r *Registry) RemoveExtension(extID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.live[:0]
	removed := 0
	for _, c := range r.live {
		if c.ExtensionID == extID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	// Clear the tail so dropped entries are not retained by the backing array
	for i := len(kept); i < len(r.live); i++ {
		r.live[i] = Command{}
	}
	r.live = kept
	return removed
}

// Live returns a copy of the extension commands.
func (r *Registry) Live() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.live...)
}

// All returns builtins followed by live commands.
func (r *Registry) All() []Command {
	return append(Builtins(), r.Live()...)
}

// Find looks up a command by owner and id.
func (r *Registry) Find(extID, id string) (Command, bool) {
	if extID == HostID {
		for _, c := range Builtins() {
			if c.ID == id {
				return c, true
			}
		}
		return Command{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.live {
		if c.ExtensionID == extID && c.ID == id {
			return c, true
		}
	}
	return Command{}, false
}
