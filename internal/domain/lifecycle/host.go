package lifecycle

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/bridge"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
)

// host is the manager seen from the bridge: capability calls and protocol
// events from sandboxes land here.
type host struct {
	m *Manager
}

var (
	_ bridge.Host     = host{}
	_ bridge.Protocol = host{}
)

// live rejects calls from an extension that is no longer allowed to talk
func (h host) live(extID, op string) error {
	if st := h.m.store.StateOf(extID); !st.Live() {
		return faults.Newf(faults.Disposed, extID, op, "extension is %s", st)
	}
	return nil
}

func (h host) Query(ctx context.Context, extID string, q bridge.DataQuery) (interface{}, error) {
	if h.m.deps.Data == nil {
		return nil, faults.Newf(faults.RuntimeFault, extID, "data.query", "no data backend configured")
	}
	return h.m.deps.Data.Query(ctx, extID, q.Schema, q.Table, q.Params)
}

func (h host) StorageGet(ctx context.Context, extID, key string) (interface{}, error) {
	if h.m.deps.KV == nil {
		return nil, nil
	}
	return h.m.deps.KV.Get(ctx, extID, key)
}

func (h host) StorageSet(ctx context.Context, extID, key string, value interface{}) error {
	if h.m.deps.KV == nil {
		return faults.Newf(faults.RuntimeFault, extID, "storage.set", "no storage configured")
	}
	return h.m.deps.KV.Set(ctx, extID, key, value)
}

func (h host) StorageDelete(ctx context.Context, extID, key string) error {
	if h.m.deps.KV == nil {
		return nil
	}
	return h.m.deps.KV.Delete(ctx, extID, key)
}

func (h host) Notify(extID, message string, kind notify.Kind) error {
	if err := h.live(extID, "ui.showNotification"); err != nil {
		return err
	}
	h.m.deps.Notices.Push(extID, message, kind)
	h.m.store.Notify()
	return nil
}

func (h host) SetStatus(extID, text string, priority int) error {
	return h.m.store.Dispatch(SetStatus{ExtID: extID, Text: text, Priority: priority})
}

func (h host) HideStatus(extID string) error {
	return h.m.store.Dispatch(HideStatus{ExtID: extID})
}

func (h host) RegisterCommand(extID, id, title string) error {
	if err := h.live(extID, "ui.command.register"); err != nil {
		return err
	}
	cmd := h.m.deps.Commands.Register(extID, id, title)
	h.m.logger.Debug("Command registered", zap.String("ext_id", extID), zap.String("command", cmd.ID))
	h.m.store.Notify()
	return nil
}

func (h host) UnregisterCommand(extID, id string) error {
	if h.m.deps.Commands.Unregister(extID, id) {
		h.m.store.Notify()
	}
	return nil
}

func (h host) Emit(extID, topic string, payload interface{}) error {
	if err := h.live(extID, "events.emit"); err != nil {
		return err
	}
	return h.m.broadcast(extID, topic, payload)
}

func (h host) Subscribe(extID, topic string) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	r, ok := h.m.runs[extID]
	if !ok {
		return faults.Newf(faults.Disposed, extID, "events.subscribe", "no live sandbox")
	}
	r.topics[topic] = struct{}{}
	return nil
}

func (h host) Unsubscribe(extID, topic string) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	if r, ok := h.m.runs[extID]; ok {
		delete(r.topics, topic)
	}
	return nil
}

func (h host) Activated(extID string) {
	h.m.mu.Lock()
	r := h.m.runs[extID]
	h.m.mu.Unlock()
	if r != nil {
		r.signal(nil)
	}
}

func (h host) Failed(extID string, err error) {
	h.m.mu.Lock()
	r := h.m.runs[extID]
	h.m.mu.Unlock()
	if r != nil {
		h.m.sandboxFault(r, err)
	}
}

func (h host) Console(extID, level string, args []interface{}) {
	logger := h.m.opts.Logger.Extension(extID)
	fields := []zap.Field{zap.Any("args", args)}
	switch level {
	case "error":
		logger.Error("console", fields...)
	case "warn":
		logger.Warn("console", fields...)
	case "debug":
		logger.Debug("console", fields...)
	default:
		logger.Info("console", fields...)
	}
}

// broadcast records an app event and delivers it to every live subscriber
// of topic except the source.
func (m *Manager) broadcast(source, topic string, payload interface{}) error {
	ts := m.deps.Log.Now()

	m.mu.Lock()
	targets := make([]*run, 0)
	for extID, r := range m.runs {
		if extID == source {
			continue
		}
		if _, ok := r.topics[topic]; ok {
			targets = append(targets, r)
		}
	}
	m.mu.Unlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].extID < targets[j].extID })

	m.dispatch(RecordEvent{Event: AppEvent{Topic: topic, Payload: payload, Source: source, TS: ts}})

	for _, r := range targets {
		if !m.store.StateOf(r.extID).Live() {
			continue
		}
		env, err := bridge.Push(r.extID, bridge.EventAppEvent, ts, topic, payload, source)
		if err != nil {
			return faults.New(faults.InvalidArgument, source, "events.emit", err)
		}
		if err := m.send(r, env); err != nil {
			m.logger.Debug("Event not delivered", zap.String("ext_id", r.extID), zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}
