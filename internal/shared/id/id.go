// Package id provides ID generation for host-side runtime records.
//
// Extension IDs come from manifests and are never generated here. Everything
// the host mints on its own (notifications, permission prompts, host-originated
// calls, sessions) gets a prefixed ULID:
//   - Lexicographic sortability: IDs minted later sort later, even within one millisecond
//   - Prefixed types: ntf_*, prm_*, call_*, sess_* keep logs readable
//   - Type safety: separate string types prevent mixing a prompt ID with a notification ID
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NotificationID identifies a notification entry
type NotificationID string

// PromptID identifies a permission prompt request
type PromptID string

// CallID correlates a host-originated request with its reply
type CallID string

// SessionID identifies one host session (one process lifetime)
type SessionID string

const (
	NotificationPrefix = "ntf"
	PromptPrefix       = "prm"
	CallPrefix         = "call"
	SessionPrefix      = "sess"
)

// Generator generates monotonic ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic, cryptographically seeded entropy
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewNotificationID generates a new notification ID
func NewNotificationID() NotificationID {
	return NotificationID(Default().GenerateWithPrefix(NotificationPrefix))
}

// NewPromptID generates a new permission prompt ID
func NewPromptID() PromptID {
	return PromptID(Default().GenerateWithPrefix(PromptPrefix))
}

// NewCallID generates a new correlation ID for host-originated calls
func NewCallID() CallID {
	return CallID(Default().GenerateWithPrefix(CallPrefix))
}

// NewSessionID generates a session ID. Sessions are the one place the host
// uses a random UUID: they are never sorted, only compared.
func NewSessionID() SessionID {
	return SessionID(SessionPrefix + "_" + uuid.NewString())
}

func (id NotificationID) String() string { return string(id) }
func (id PromptID) String() string       { return string(id) }
func (id CallID) String() string         { return string(id) }
func (id SessionID) String() string      { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
