package bridge

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/utils"
)

// DataQuery is the argument of data.query(schema, table, params).
type DataQuery struct {
	Schema string                 `json:"schema"`
	Table  string                 `json:"table"`
	Params map[string]interface{} `json:"params"`
}

// Notification is the argument of ui.showNotification(message, kind).
type Notification struct {
	Message string
	Kind    notify.Kind
}

// Status is the argument of ui.statusBar.setText(text, priority).
type Status struct {
	Text     string
	Priority int
}

// CommandSpec is the argument of ui.command.register(id, title).
type CommandSpec struct {
	ID    string
	Title string
}

// AppEvent is the argument of events.emit(topic, payload).
type AppEvent struct {
	Topic   string
	Payload interface{}
}

// Call is a validated capability invocation. Exactly the field matching
// Capability is set.
type Call struct {
	Capability Capability
	Query      DataQuery
	Key        string
	Value      interface{}
	Notify     Notification
	Status     Status
	Command    CommandSpec
	Event      AppEvent
	Topic      string
}

type positional struct {
	event string
	args  []json.RawMessage
}

func (p positional) arity(min, max int) error {
	if n := len(p.args); n < min || n > max {
		if min == max {
			return fmt.Errorf("%s takes %d argument(s), got %d", p.event, min, n)
		}
		return fmt.Errorf("%s takes %d to %d arguments, got %d", p.event, min, max, n)
	}
	return nil
}

func (p positional) present(i int) bool {
	return i < len(p.args) && string(p.args[i]) != "null"
}

func (p positional) str(i int, name string) (string, error) {
	var s string
	if !p.present(i) {
		return "", fmt.Errorf("%s is required", name)
	}
	if err := codec.Unmarshal(p.args[i], &s); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s, nil
}

func (p positional) optionalStr(i int, name string) (string, error) {
	if !p.present(i) {
		return "", nil
	}
	return p.str(i, name)
}

func (p positional) value(i int, name string) (interface{}, error) {
	if !p.present(i) {
		return nil, nil
	}
	var v interface{}
	if err := codec.Unmarshal(p.args[i], &v); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON", name)
	}
	return v, utils.ValidateValue(v, name)
}

func (p positional) object(i int, name string) (map[string]interface{}, error) {
	if !p.present(i) {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := codec.Unmarshal(p.args[i], &m); err != nil {
		return nil, fmt.Errorf("%s must be an object", name)
	}
	return m, utils.ValidateValue(m, name)
}

func (p positional) integer(i int, name string) (int, error) {
	if !p.present(i) {
		return 0, nil
	}
	var f float64
	if err := codec.Unmarshal(p.args[i], &f); err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return int(f), nil
}

// Parse validates the positional args of a capability call.
func Parse(c Capability, raw []json.RawMessage) (Call, error) {
	p := positional{event: c.Event(), args: raw}
	call := Call{Capability: c}
	var err error

	switch c {
	case CapDataQuery:
		if err = p.arity(2, 3); err != nil {
			return call, err
		}
		if call.Query.Schema, err = p.str(0, "schema"); err != nil {
			return call, err
		}
		if err = utils.ValidateIdentifier(call.Query.Schema, "schema"); err != nil {
			return call, err
		}
		if call.Query.Table, err = p.str(1, "table"); err != nil {
			return call, err
		}
		if err = utils.ValidateIdentifier(call.Query.Table, "table"); err != nil {
			return call, err
		}
		call.Query.Params, err = p.object(2, "params")

	case CapStorageGet, CapStorageDelete:
		if err = p.arity(1, 1); err != nil {
			return call, err
		}
		if call.Key, err = p.str(0, "key"); err != nil {
			return call, err
		}
		err = utils.ValidateString(call.Key, "key", 1, utils.MaxKeyLength, true)

	case CapStorageSet:
		if err = p.arity(2, 2); err != nil {
			return call, err
		}
		if call.Key, err = p.str(0, "key"); err != nil {
			return call, err
		}
		if err = utils.ValidateString(call.Key, "key", 1, utils.MaxKeyLength, true); err != nil {
			return call, err
		}
		call.Value, err = p.value(1, "value")

	case CapShowNotification:
		if err = p.arity(1, 2); err != nil {
			return call, err
		}
		if call.Notify.Message, err = p.str(0, "message"); err != nil {
			return call, err
		}
		if err = utils.ValidateString(call.Notify.Message, "message", 1, utils.MaxNotificationLength, true); err != nil {
			return call, err
		}
		var kind string
		if kind, err = p.optionalStr(1, "kind"); err != nil {
			return call, err
		}
		call.Notify.Kind, err = notify.ParseKind(kind)

	case CapStatusBarSetText:
		if err = p.arity(1, 2); err != nil {
			return call, err
		}
		if call.Status.Text, err = p.str(0, "text"); err != nil {
			return call, err
		}
		if err = utils.ValidateString(call.Status.Text, "text", 0, utils.MaxStatusLength, false); err != nil {
			return call, err
		}
		call.Status.Priority, err = p.integer(1, "priority")

	case CapStatusBarHide:
		err = p.arity(0, 0)

	case CapCommandRegister:
		if err = p.arity(1, 2); err != nil {
			return call, err
		}
		if call.Command.ID, err = p.str(0, "id"); err != nil {
			return call, err
		}
		if err = utils.ValidateCommandID(call.Command.ID); err != nil {
			return call, err
		}
		if call.Command.Title, err = p.optionalStr(1, "title"); err != nil {
			return call, err
		}
		err = utils.ValidateString(call.Command.Title, "title", 0, utils.MaxTitleLength, false)

	case CapCommandUnregister:
		if err = p.arity(1, 1); err != nil {
			return call, err
		}
		if call.Command.ID, err = p.str(0, "id"); err != nil {
			return call, err
		}
		err = utils.ValidateCommandID(call.Command.ID)

	case CapEventsEmit:
		if err = p.arity(1, 2); err != nil {
			return call, err
		}
		if call.Event.Topic, err = p.str(0, "topic"); err != nil {
			return call, err
		}
		if err = utils.ValidateTopic(call.Event.Topic); err != nil {
			return call, err
		}
		call.Event.Payload, err = p.value(1, "payload")

	case CapEventsSubscribe, CapEventsUnsubscribe:
		if err = p.arity(1, 1); err != nil {
			return call, err
		}
		if call.Topic, err = p.str(0, "topic"); err != nil {
			return call, err
		}
		err = utils.ValidateTopic(call.Topic)

	default:
		err = fmt.Errorf("unknown capability %d", int(c))
	}
	return call, err
}
