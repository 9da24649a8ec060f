package bridge

import "github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"

// Capability is one permission-gated host function. The set is closed.
type Capability int

const (
	CapDataQuery Capability = iota + 1
	CapStorageGet
	CapStorageSet
	CapStorageDelete
	CapShowNotification
	CapStatusBarSetText
	CapStatusBarHide
	CapCommandRegister
	CapCommandUnregister
	CapEventsEmit
	CapEventsSubscribe
	CapEventsUnsubscribe
)

var capabilities = []Capability{
	CapDataQuery,
	CapStorageGet,
	CapStorageSet,
	CapStorageDelete,
	CapShowNotification,
	CapStatusBarSetText,
	CapStatusBarHide,
	CapCommandRegister,
	CapCommandUnregister,
	CapEventsEmit,
	CapEventsSubscribe,
	CapEventsUnsubscribe,
}

var byEvent = func() map[string]Capability {
	m := make(map[string]Capability, len(capabilities))
	for _, c := range capabilities {
		m[c.Event()] = c
	}
	return m
}()

// Capabilities lists every capability.
func Capabilities() []Capability {
	return append([]Capability(nil), capabilities...)
}

// Lookup resolves an event name.
func Lookup(event string) (Capability, bool) {
	c, ok := byEvent[event]
	return c, ok
}

// Remote reports whether the capability waits on an outside backend. Such
// calls are read-only and may complete out of order with the extension's
// other messages.
func (c Capability) Remote() bool {
	return c == CapDataQuery
}

// Event is the wire name of the capability.
func (c Capability) Event() string {
	switch c {
	case CapDataQuery:
		return "data.query"
	case CapStorageGet:
		return "storage.get"
	case CapStorageSet:
		return "storage.set"
	case CapStorageDelete:
		return "storage.delete"
	case CapShowNotification:
		return "ui.showNotification"
	case CapStatusBarSetText:
		return "ui.statusBar.setText"
	case CapStatusBarHide:
		return "ui.statusBar.hide"
	case CapCommandRegister:
		return "ui.command.register"
	case CapCommandUnregister:
		return "ui.command.unregister"
	case CapEventsEmit:
		return "events.emit"
	case CapEventsSubscribe:
		return "events.subscribe"
	case CapEventsUnsubscribe:
		return "events.unsubscribe"
	default:
		return ""
	}
}

func (c Capability) String() string {
	return c.Event()
}

// Permission is what the extension must have approved to call c.
func (c Capability) Permission() manifest.Permission {
	switch c {
	case CapDataQuery:
		return manifest.PermDataQuery
	case CapStorageGet:
		return manifest.PermStorageRead
	case CapStorageSet, CapStorageDelete:
		return manifest.PermStorageWrite
	case CapShowNotification:
		return manifest.PermUINotifications
	case CapStatusBarSetText, CapStatusBarHide:
		return manifest.PermUIStatusBar
	case CapCommandRegister, CapCommandUnregister:
		return manifest.PermUICommands
	case CapEventsEmit:
		return manifest.PermEventsEmit
	case CapEventsSubscribe, CapEventsUnsubscribe:
		return manifest.PermEventsSubscribe
	default:
		return ""
	}
}
