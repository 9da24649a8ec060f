// Package lifecycle is the extension state machine and the store that is
// the single source of truth for extension, status bar, palette and app
// event state.
//
// States move available -> fetching -> activating -> active, with error and
// inactive as the resting states that only move on user action. The Manager
// is the only writer: it dispatches actions to the Store, runs one pump
// goroutine per live sandbox that feeds its messages through the bridge
// dispatcher in arrival order, and tears sandboxes down on deactivation,
// faults and shutdown.
package lifecycle
