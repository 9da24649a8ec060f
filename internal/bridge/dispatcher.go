package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
)

// Host is what capability calls delegate to.
type Host interface {
	Query(ctx context.Context, extID string, q DataQuery) (interface{}, error)
	StorageGet(ctx context.Context, extID, key string) (interface{}, error)
	StorageSet(ctx context.Context, extID, key string, value interface{}) error
	StorageDelete(ctx context.Context, extID, key string) error
	Notify(extID, message string, kind notify.Kind) error
	SetStatus(extID, text string, priority int) error
	HideStatus(extID string) error
	RegisterCommand(extID, id, title string) error
	UnregisterCommand(extID, id string) error
	Emit(extID, topic string, payload interface{}) error
	Subscribe(extID, topic string) error
	Unsubscribe(extID, topic string) error
}

// Protocol receives the non-capability events.
type Protocol interface {
	// Activated is the handshake.
	Activated(extID string)
	// Failed reports an error the extension signalled about itself.
	Failed(extID string, err error)
	// Console forwards extension console output.
	Console(extID, level string, args []interface{})
}

// Dispatcher routes inbound messages. It is safe for concurrent use, but
// messages from one extension must be handed to it in arrival order.
type Dispatcher struct {
	host     Host
	protocol Protocol
	log      *ipclog.Log
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(host Host, protocol Protocol, log *ipclog.Log, metrics *monitoring.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		host:     host,
		protocol: protocol,
		log:      log,
		metrics:  metrics,
		logger:   logger.Named("bridge"),
	}
}

// Handle processes one raw message from extID. The message is logged as
// received before anything else happens. The returned envelope, if any, is
// the reply to post back; it has already been logged.
func (d *Dispatcher) Handle(ctx context.Context, extID string, approved manifest.Set, data []byte) *Envelope {
	env, ok := d.Accept(extID, data)
	if !ok {
		return nil
	}
	return d.Process(ctx, extID, approved, env)
}

// Accept decodes and logs one raw message. Malformed messages are logged,
// counted and dropped, and ok is false.
func (d *Dispatcher) Accept(extID string, data []byte) (Envelope, bool) {
	env, err := Decode(extID, data)
	if err != nil {
		d.log.Append(ipclog.Entry{
			Direction: ipclog.Out,
			ExtID:     extID,
			Event:     env.Event,
			Args:      string(data),
			CallID:    env.ID,
			Error:     err.Error(),
		})
		d.metrics.RecordBridgeMessage("malformed", "rejected", 0)
		d.logger.Warn("Dropped malformed message", zap.String("ext_id", extID), zap.Error(err))
		return env, false
	}

	d.log.Append(ipclog.Entry{
		Direction: ipclog.Out,
		ExtID:     extID,
		Event:     env.Event,
		Args:      env.LoggedArgs(),
		CallID:    env.ID,
	})
	return env, true
}

// Process runs an accepted envelope and returns the reply to post, if any.
func (d *Dispatcher) Process(ctx context.Context, extID string, approved manifest.Set, env Envelope) *Envelope {
	switch env.Event {
	case EventActivated, EventError, EventLog:
		d.handleProtocol(env)
		if env.Expects() {
			return d.reply(extID, env, nil, nil)
		}
		return nil
	}

	start := time.Now()
	result, err := d.invoke(ctx, extID, approved, env)
	outcome := "ok"
	if err != nil {
		kind, _ := faults.KindOf(err)
		outcome = string(kind)
		if outcome == "" {
			outcome = string(faults.RuntimeFault)
		}
	}
	d.metrics.RecordBridgeMessage(env.Event, outcome, time.Since(start))

	if env.Expects() {
		return d.reply(extID, env, result, err)
	}

	if err != nil {
		d.log.Append(ipclog.Entry{
			Direction: ipclog.Host,
			ExtID:     extID,
			Event:     env.Event,
			Error:     err.Error(),
		})
		d.logger.Debug("Fire-and-forget call failed",
			zap.String("ext_id", extID),
			zap.String("event", env.Event),
			zap.Error(err))
	}
	return nil
}

// reply builds and logs the answer to a call that carried an id.
func (d *Dispatcher) reply(extID string, call Envelope, result interface{}, err error) *Envelope {
	var reply Envelope
	if err != nil {
		reply = Fail(call, err, d.log.Now())
	} else {
		reply = Reply(call, result, d.log.Now())
	}
	d.log.Append(ipclog.Entry{
		Direction: ipclog.In,
		ExtID:     extID,
		Event:     reply.Event,
		Args:      reply.LoggedArgs(),
		CallID:    reply.ID,
		Error:     errString(err),
	})
	return &reply
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// invoke runs the gate: permission, validation, delegation.
func (d *Dispatcher) invoke(ctx context.Context, extID string, approved manifest.Set, env Envelope) (interface{}, error) {
	capability, ok := Lookup(env.Event)
	if !ok {
		return nil, faults.Newf(faults.ProtocolViolation, extID, env.Event, "unknown event %q", env.Event)
	}

	if perm := capability.Permission(); !approved.Has(perm) {
		return nil, faults.Newf(faults.PermissionDenied, extID, env.Event, "permission %s not granted", perm)
	}

	raw, err := env.DecodeArgs()
	if err != nil {
		return nil, faults.New(faults.InvalidArgument, extID, env.Event, err)
	}
	call, err := Parse(capability, raw)
	if err != nil {
		return nil, faults.New(faults.InvalidArgument, extID, env.Event, err)
	}

	result, err := d.delegate(ctx, extID, call)
	if err != nil {
		if _, classified := faults.KindOf(err); !classified {
			err = faults.New(faults.RuntimeFault, extID, env.Event, err)
		}
		return nil, err
	}
	return result, nil
}

func (d *Dispatcher) delegate(ctx context.Context, extID string, call Call) (interface{}, error) {
	switch call.Capability {
	case CapDataQuery:
		return d.host.Query(ctx, extID, call.Query)
	case CapStorageGet:
		return d.host.StorageGet(ctx, extID, call.Key)
	case CapStorageSet:
		return nil, d.host.StorageSet(ctx, extID, call.Key, call.Value)
	case CapStorageDelete:
		return nil, d.host.StorageDelete(ctx, extID, call.Key)
	case CapShowNotification:
		return nil, d.host.Notify(extID, call.Notify.Message, call.Notify.Kind)
	case CapStatusBarSetText:
		return nil, d.host.SetStatus(extID, call.Status.Text, call.Status.Priority)
	case CapStatusBarHide:
		return nil, d.host.HideStatus(extID)
	case CapCommandRegister:
		return nil, d.host.RegisterCommand(extID, call.Command.ID, call.Command.Title)
	case CapCommandUnregister:
		return nil, d.host.UnregisterCommand(extID, call.Command.ID)
	case CapEventsEmit:
		return nil, d.host.Emit(extID, call.Event.Topic, call.Event.Payload)
	case CapEventsSubscribe:
		return nil, d.host.Subscribe(extID, call.Topic)
	case CapEventsUnsubscribe:
		return nil, d.host.Unsubscribe(extID, call.Topic)
	default:
		return nil, fmt.Errorf("capability %s has no handler", call.Capability)
	}
}

func (d *Dispatcher) handleProtocol(env Envelope) {
	raw, _ := env.DecodeArgs()
	p := positional{event: env.Event, args: raw}

	switch env.Event {
	case EventActivated:
		d.protocol.Activated(env.ExtID)

	case EventError:
		msg, err := p.str(0, "message")
		if err != nil || msg == "" {
			msg = "extension reported an error"
		}
		if stack, _ := p.optionalStr(1, "stack"); stack != "" {
			msg += "\n" + stack
		}
		d.protocol.Failed(env.ExtID, faults.New(faults.RuntimeFault, env.ExtID, "extension", errors.New(msg)))

	case EventLog:
		level, err := p.str(0, "level")
		if err != nil {
			level = "log"
		}
		var values []interface{}
		for i := 1; i < len(raw); i++ {
			var v interface{}
			if codec.Unmarshal(raw[i], &v) == nil {
				values = append(values, v)
			}
		}
		d.protocol.Console(env.ExtID, level, values)
	}
}
