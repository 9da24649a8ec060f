package manifest

import "sort"

// Permission names one gated capability family
type Permission string

const (
	PermDataQuery           Permission = "data.query"
	PermDataSpecimens       Permission = "data.specimens"
	PermDataResistanceStats Permission = "data.resistanceStats"
	PermStorageRead         Permission = "storage.read"
	PermStorageWrite        Permission = "storage.write"
	PermUINotifications     Permission = "ui.notifications"
	PermUIStatusBar         Permission = "ui.statusBar"
	PermUICommands          Permission = "ui.commands"
	PermEventsEmit          Permission = "events.emit"
	PermEventsSubscribe     Permission = "events.subscribe"
)

var known = map[Permission]string{
	PermDataQuery:           "Query records through the host data service",
	PermDataSpecimens:       "Read specimen records",
	PermDataResistanceStats: "Read aggregated resistance statistics",
	PermStorageRead:         "Read the extension's own settings",
	PermStorageWrite:        "Write the extension's own settings",
	PermUINotifications:     "Show notifications",
	PermUIStatusBar:         "Show text in the status bar",
	PermUICommands:          "Add commands to the command palette",
	PermEventsEmit:          "Broadcast events to other extensions",
	PermEventsSubscribe:     "Receive events from other extensions",
}

// Valid reports whether p belongs to the permission vocabulary.
func (p Permission) Valid() bool {
	_, ok := known[p]
	return ok
}

// Description returns the human readable text shown in permission prompts.
func (p Permission) Description() string {
	return known[p]
}

// All returns the full vocabulary in sorted order.
func All() []Permission {
	out := make([]Permission, 0, len(known))
	for p := range known {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set is an unordered collection of permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from a list, ignoring duplicates.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Merge returns the union of s and other without modifying either.
func (s Set) Merge(other Set) Set {
	out := s.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Slice returns the members in sorted order.
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Delta returns the permissions in required that approved lacks, in the
// order they appear in required, without duplicates.
func Delta(required []Permission, approved Set) []Permission {
	var out []Permission
	seen := make(Set, len(required))
	for _, p := range required {
		if approved.Has(p) || seen.Has(p) {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
