package bridge

import (
	"encoding/json"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
)

// Envelope is one bridge message. TS is a JSON number and may be fractional.
type Envelope struct {
	Direction ipclog.Direction `json:"direction"`
	ExtID     string           `json:"extId"`
	Event     string           `json:"event"`
	Args      json.RawMessage  `json:"args,omitempty"`
	TS        float64          `json:"ts"`
	ID        string           `json:"id,omitempty"`
}

// Protocol events exchanged outside the capability table.
const (
	EventActivated = "extension.activated"
	EventError     = "extension.error"
	EventLog       = "extension.log"

	EventCommandInvoke = "command.invoke"
	EventAppEvent      = "app.event"
)

// ReplyArgs is the args object of a reply.
type ReplyArgs struct {
	Result interface{}    `json:"result,omitempty"`
	Error  *faults.Detail `json:"error,omitempty"`
}

// replyWire decodes replies without losing the raw result.
type replyWire struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *faults.Detail  `json:"error,omitempty"`
}

// Expects reports whether the sender waits for a reply.
func (e Envelope) Expects() bool {
	return e.ID != ""
}

// Reply builds the successful reply to a call.
func Reply(call Envelope, result interface{}, ts int64) Envelope {
	return reply(call, ReplyArgs{Result: result}, ts)
}

// Fail builds the error reply to a call.
func Fail(call Envelope, err error, ts int64) Envelope {
	return reply(call, ReplyArgs{Error: faults.ToDetail(err)}, ts)
}

func reply(call Envelope, args ReplyArgs, ts int64) Envelope {
	raw, err := codec.Marshal(args)
	if err != nil {
		raw, _ = codec.Marshal(ReplyArgs{Error: faults.ToDetail(err)})
	}
	return Envelope{
		Direction: ipclog.In,
		ExtID:     call.ExtID,
		Event:     call.Event,
		Args:      raw,
		TS:        float64(ts),
		ID:        call.ID,
	}
}

// Push builds a host to extension event that expects no reply.
func Push(extID, event string, ts int64, args ...interface{}) (Envelope, error) {
	if args == nil {
		args = []interface{}{}
	}
	raw, err := codec.Marshal(args)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Direction: ipclog.In, ExtID: extID, Event: event, Args: raw, TS: float64(ts)}, nil
}

// Outcome splits a reply into its raw result or classified error.
func Outcome(reply Envelope) (json.RawMessage, error) {
	var w replyWire
	if len(reply.Args) > 0 {
		if err := codec.Unmarshal(reply.Args, &w); err != nil {
			return nil, faults.New(faults.ProtocolViolation, reply.ExtID, reply.Event, err)
		}
	}
	if w.Error != nil {
		return nil, faults.FromDetail(reply.ExtID, reply.Event, *w.Error)
	}
	return w.Result, nil
}

// DecodeArgs decodes positional args into a slice of raw values.
func (e Envelope) DecodeArgs() ([]json.RawMessage, error) {
	if len(e.Args) == 0 || string(e.Args) == "null" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := codec.Unmarshal(e.Args, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// LoggedArgs decodes args for the message log, falling back to the raw text.
func (e Envelope) LoggedArgs() interface{} {
	if len(e.Args) == 0 {
		return nil
	}
	var v interface{}
	if err := codec.Unmarshal(e.Args, &v); err != nil {
		return string(e.Args)
	}
	return v
}
