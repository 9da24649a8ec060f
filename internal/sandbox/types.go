package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/bridge"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// IframeSandbox is the sandbox attribute an iframe document is rendered with.
const IframeSandbox = "allow-scripts allow-downloads"

// BridgeMarker is the placeholder extension builds leave in their HTML for
// the bridge. It is stripped; the bridge is always injected as the first
// script of the document head.
const BridgeMarker = "OPENLDR_BRIDGE_INJECT"

var (
	// ErrStopped is returned when posting to a stopped sandbox.
	ErrStopped = errors.New("sandbox stopped")
	// ErrScriptTimeout is the fault raised when one job overruns the watchdog.
	ErrScriptTimeout = errors.New("script execution timeout exceeded")
)

// Config defines sandbox limits
type Config struct {
	ScriptTimeout    time.Duration // Watchdog for a single job (script, callback, timer)
	CallTimeout      time.Duration // Response window for calls that expect a reply
	MaxCallStackSize int           // goja call stack limit
	MessageBuffer    int           // Outbound message buffer
	Clock            clock.Clock   // Drives JS timers and call timeouts
}

// DefaultConfig returns the production limits
func DefaultConfig() Config {
	return Config{
		ScriptTimeout:    5 * time.Second,
		CallTimeout:      30 * time.Second,
		MaxCallStackSize: 1024,
		MessageBuffer:    256,
		Clock:            clock.Real(),
	}
}

// Message is one thing a sandbox hands to the host: raw envelope bytes, or
// a fault when extension code threw or overran the watchdog.
type Message struct {
	Data  []byte
	Fault error
}

// BridgeInit is what the host tells a sandbox about the bridge.
type BridgeInit struct {
	ExtID string
	// Abandoned runs when an extension call got no reply within the window.
	Abandoned func(callID, event string)
}

// Handle is a live sandbox.
type Handle interface {
	ExtID() string
	Kind() manifest.Kind
	// Post delivers a host to extension envelope.
	Post(env bridge.Envelope) error
	// Messages yields extension output in order. It is closed once the
	// sandbox has fully stopped.
	Messages() <-chan Message
	// Document renders the current iframe document; empty for workers.
	Document() string
	// Done is closed once the sandbox has stopped.
	Done() <-chan struct{}
}
