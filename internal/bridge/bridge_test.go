package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

type call struct {
	name string
	args []interface{}
}

type fakeHost struct {
	calls     []call
	queryErr  error
	activated []string
	failures  []error
	console   []string
}

func (h *fakeHost) record(name string, args ...interface{}) {
	h.calls = append(h.calls, call{name: name, args: args})
}

func (h *fakeHost) Query(ctx context.Context, extID string, q DataQuery) (interface{}, error) {
	h.record("query", q.Schema, q.Table, q.Params)
	if h.queryErr != nil {
		return nil, h.queryErr
	}
	return map[string]interface{}{"rows": []interface{}{1.0, 2.0}, "total": 2.0}, nil
}
func (h *fakeHost) StorageGet(ctx context.Context, extID, key string) (interface{}, error) {
	h.record("storage.get", key)
	return "v", nil
}
func (h *fakeHost) StorageSet(ctx context.Context, extID, key string, value interface{}) error {
	h.record("storage.set", key, value)
	return nil
}
func (h *fakeHost) StorageDelete(ctx context.Context, extID, key string) error {
	h.record("storage.delete", key)
	return nil
}
func (h *fakeHost) Notify(extID, message string, kind notify.Kind) error {
	h.record("notify", message, kind)
	return nil
}
func (h *fakeHost) SetStatus(extID, text string, priority int) error {
	h.record("status", text, priority)
	return nil
}
func (h *fakeHost) HideStatus(extID string) error {
	h.record("status.hide")
	return nil
}
func (h *fakeHost) RegisterCommand(extID, id, title string) error {
	h.record("command.register", id, title)
	return nil
}
func (h *fakeHost) UnregisterCommand(extID, id string) error {
	h.record("command.unregister", id)
	return nil
}
func (h *fakeHost) Emit(extID, topic string, payload interface{}) error {
	h.record("emit", topic, payload)
	return nil
}
func (h *fakeHost) Subscribe(extID, topic string) error {
	h.record("subscribe", topic)
	return nil
}
func (h *fakeHost) Unsubscribe(extID, topic string) error {
	h.record("unsubscribe", topic)
	return nil
}
func (h *fakeHost) Activated(extID string) { h.activated = append(h.activated, extID) }
func (h *fakeHost) Failed(extID string, err error) {
	h.failures = append(h.failures, err)
}
func (h *fakeHost) Console(extID, level string, args []interface{}) {
	h.console = append(h.console, level)
}

func newDispatcher() (*Dispatcher, *fakeHost, *ipclog.Log) {
	h := &fakeHost{}
	log := ipclog.New(nil, 0)
	return NewDispatcher(h, h, log, nil, nil), h, log
}

func replyError(t *testing.T, reply *Envelope) error {
	t.Helper()
	require.NotNil(t, reply)
	_, err := Outcome(*reply)
	return err
}

func TestDispatchDataQueryWithPermission(t *testing.T) {
	d, h, log := newDispatcher()
	approved := manifest.NewSet(manifest.PermDataQuery)

	reply := d.Handle(context.Background(), "lab.a", approved,
		[]byte(`{"direction":"out","extId":"lab.a","event":"data.query","args":["lab","requests",{"page":1}],"ts":1,"id":"c1"}`))
	require.NotNil(t, reply)
	assert.Equal(t, "c1", reply.ID)
	assert.Equal(t, ipclog.In, reply.Direction)
	assert.Equal(t, "data.query", reply.Event)

	result, err := Outcome(*reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rows":[1,2],"total":2}`, string(result))

	require.Len(t, h.calls, 1)
	assert.Equal(t, []interface{}{"lab", "requests", map[string]interface{}{"page": 1.0}}, h.calls[0].args)

	entries := log.Entries("lab.a")
	require.Len(t, entries, 2)
	assert.Equal(t, ipclog.Out, entries[0].Direction)
	assert.Equal(t, "c1", entries[0].CallID)
	assert.Equal(t, ipclog.In, entries[1].Direction)
	assert.Empty(t, entries[1].Error)
}

func TestDispatchWithoutPermissionIsDenied(t *testing.T) {
	d, h, log := newDispatcher()

	reply := d.Handle(context.Background(), "lab.a", manifest.NewSet(),
		[]byte(`{"direction":"out","extId":"lab.a","event":"data.query","args":["lab","requests"],"ts":1,"id":"c9"}`))

	err := replyError(t, reply)
	assert.ErrorIs(t, err, faults.PermissionDenied)
	assert.Equal(t, "c9", reply.ID)
	assert.Empty(t, h.calls)

	entries := log.Entries("lab.a")
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Error, "PermissionDenied")
}

func TestPermissionIsCheckedBeforeArguments(t *testing.T) {
	d, _, _ := newDispatcher()
	reply := d.Handle(context.Background(), "lab.a", manifest.NewSet(),
		[]byte(`{"direction":"out","extId":"lab.a","event":"data.query","args":[42],"ts":1,"id":"c1"}`))
	assert.ErrorIs(t, replyError(t, reply), faults.PermissionDenied)
}

func TestInvalidArgumentsAreRejected(t *testing.T) {
	d, h, _ := newDispatcher()
	approved := manifest.NewSet(manifest.PermDataQuery, manifest.PermUINotifications, manifest.PermUICommands)

	cases := []string{
		`{"direction":"out","extId":"lab.a","event":"data.query","args":[42,"t"],"ts":1,"id":"x"}`,
		`{"direction":"out","extId":"lab.a","event":"data.query","args":["lab","drop table"],"ts":1,"id":"x"}`,
		`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":["hi","fatal"],"ts":1,"id":"x"}`,
		`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":[],"ts":1,"id":"x"}`,
		`{"direction":"out","extId":"lab.a","event":"ui.command.register","args":["bad id","Title"],"ts":1,"id":"x"}`,
	}
	for _, raw := range cases {
		err := replyError(t, d.Handle(context.Background(), "lab.a", approved, []byte(raw)))
		assert.ErrorIs(t, err, faults.InvalidArgument, raw)
		assert.ErrorIs(t, err, faults.ProtocolViolation, raw)
	}
	assert.Empty(t, h.calls)
}

func TestFireAndForgetNotification(t *testing.T) {
	d, h, log := newDispatcher()
	approved := manifest.NewSet(manifest.PermUINotifications)

	reply := d.Handle(context.Background(), "lab.a", approved,
		[]byte(`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":["hi","info"],"ts":1}`))
	assert.Nil(t, reply)
	require.Len(t, h.calls, 1)
	assert.Equal(t, []interface{}{"hi", notify.KindInfo}, h.calls[0].args)
	assert.Len(t, log.Entries(""), 1)
}

func TestFireAndForgetFailureIsLoggedAsHost(t *testing.T) {
	d, _, log := newDispatcher()

	reply := d.Handle(context.Background(), "lab.a", manifest.NewSet(),
		[]byte(`{"direction":"out","extId":"lab.a","event":"events.emit","args":["t"],"ts":1}`))
	assert.Nil(t, reply)

	entries := log.Entries("")
	require.Len(t, entries, 2)
	assert.Equal(t, ipclog.Host, entries[1].Direction)
	assert.Contains(t, entries[1].Error, "PermissionDenied")
}

func TestCollaboratorErrorBecomesRuntimeFault(t *testing.T) {
	d, h, _ := newDispatcher()
	h.queryErr = errors.New("backend unavailable")

	err := replyError(t, d.Handle(context.Background(), "lab.a", manifest.NewSet(manifest.PermDataQuery),
		[]byte(`{"direction":"out","extId":"lab.a","event":"data.query","args":["lab","t"],"ts":1,"id":"q"}`)))
	assert.ErrorIs(t, err, faults.RuntimeFault)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestMalformedMessagesAreLoggedNotDispatched(t *testing.T) {
	d, h, log := newDispatcher()
	approved := manifest.NewSet(manifest.All()...)

	bad := []string{
		`not json`,
		`{"direction":"out","extId":"lab.a","args":[],"ts":1}`,
		`{"direction":"in","extId":"lab.a","event":"data.query","args":[],"ts":1}`,
		`{"direction":"out","extId":"lab.other","event":"ui.showNotification","args":["x"],"ts":1}`,
		`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":{"message":"x"},"ts":1}`,
	}
	for _, raw := range bad {
		assert.Nil(t, d.Handle(context.Background(), "lab.a", approved, []byte(raw)))
	}
	assert.Empty(t, h.calls)

	entries := log.Entries("lab.a")
	require.Len(t, entries, len(bad))
	for _, e := range entries {
		assert.Equal(t, ipclog.Out, e.Direction)
		assert.Contains(t, e.Error, "ProtocolViolation")
	}
}

func TestUnknownEventIsProtocolViolation(t *testing.T) {
	d, _, _ := newDispatcher()
	err := replyError(t, d.Handle(context.Background(), "lab.a", manifest.NewSet(manifest.All()...),
		[]byte(`{"direction":"out","extId":"lab.a","event":"fs.read","args":[],"ts":1,"id":"z"}`)))
	assert.ErrorIs(t, err, faults.ProtocolViolation)
	assert.NotErrorIs(t, err, faults.InvalidArgument)
}

func TestProtocolEvents(t *testing.T) {
	d, h, _ := newDispatcher()
	ctx := context.Background()
	none := manifest.NewSet()

	d.Handle(ctx, "lab.a", none, []byte(`{"direction":"out","extId":"lab.a","event":"extension.activated","ts":1}`))
	d.Handle(ctx, "lab.a", none, []byte(`{"direction":"out","extId":"lab.a","event":"extension.log","args":["warn","x",1],"ts":2}`))
	d.Handle(ctx, "lab.a", none, []byte(`{"direction":"out","extId":"lab.a","event":"extension.error","args":["boom"],"ts":3}`))

	assert.Equal(t, []string{"lab.a"}, h.activated)
	assert.Equal(t, []string{"warn"}, h.console)
	require.Len(t, h.failures, 1)
	assert.ErrorIs(t, h.failures[0], faults.RuntimeFault)
	assert.Contains(t, h.failures[0].Error(), "boom")
}

func TestProtocolEventWithIDIsAnswered(t *testing.T) {
	d, h, log := newDispatcher()
	reply := d.Handle(context.Background(), "lab.a", manifest.NewSet(),
		[]byte(`{"direction":"out","extId":"lab.a","event":"extension.activated","ts":1,"id":"h1"}`))

	assert.Equal(t, []string{"lab.a"}, h.activated)
	require.NotNil(t, reply)
	assert.Equal(t, "h1", reply.ID)
	assert.Equal(t, ipclog.In, reply.Direction)
	result, err := Outcome(*reply)
	require.NoError(t, err)
	assert.Empty(t, result)

	entries := log.Entries("lab.a")
	require.Len(t, entries, 2)
	assert.Equal(t, ipclog.In, entries[1].Direction)
	assert.Equal(t, "h1", entries[1].CallID)
}

func TestRemoteCapabilities(t *testing.T) {
	for _, c := range Capabilities() {
		assert.Equal(t, c == CapDataQuery, c.Remote(), c.Event())
	}
}

func TestEveryCapabilityHasEventAndPermission(t *testing.T) {
	for _, c := range Capabilities() {
		assert.NotEmpty(t, c.Event())
		assert.True(t, c.Permission().Valid(), c.Event())
		got, ok := Lookup(c.Event())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
	assert.Equal(t, manifest.PermStorageRead, CapStorageGet.Permission())
	assert.Equal(t, manifest.PermStorageWrite, CapStorageDelete.Permission())
	assert.Equal(t, manifest.PermEventsSubscribe, CapEventsUnsubscribe.Permission())
}

func TestCorrelatorResolve(t *testing.T) {
	c := NewCorrelator("lab.a", clock.Fake(time.Unix(0, 0)), time.Second, nil)
	f := c.Open("c1", "storage.get")
	assert.Equal(t, 1, c.Len())

	reply := Reply(Envelope{ExtID: "lab.a", Event: "storage.get", ID: "c1"}, "value", 5)
	assert.True(t, c.Resolve(reply))
	assert.False(t, c.Resolve(reply), "late duplicate is dropped")

	result, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `"value"`, string(result))
	assert.Equal(t, 0, c.Len())
}

func TestCorrelatorTimeout(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	var abandoned []string
	c := NewCorrelator("lab.a", clk, 30*time.Second, func(id, event string) {
		abandoned = append(abandoned, id+":"+event)
	})
	f := c.Open("c1", "data.query")

	clk.Advance(29 * time.Second)
	assert.Equal(t, 1, c.Len())
	clk.Advance(time.Second)

	_, err := f.Wait(context.Background())
	assert.ErrorIs(t, err, faults.Timeout)
	assert.Equal(t, []string{"c1:data.query"}, abandoned)

	// The reply arriving after the window is ignored
	assert.False(t, c.Resolve(Reply(Envelope{ExtID: "lab.a", Event: "data.query", ID: "c1"}, 1, 0)))
}

func TestCorrelatorDisposeAll(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	c := NewCorrelator("lab.a", clk, time.Second, nil)
	a := c.Open("a", "data.query")
	b := c.Open("b", "storage.get")

	assert.Equal(t, 2, c.DisposeAll())
	assert.Equal(t, 0, clk.Pending())

	for _, f := range []*Future{a, b} {
		_, err := f.Wait(context.Background())
		assert.ErrorIs(t, err, faults.Disposed)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env, err := Push("lab.a", EventCommandInvoke, 7, "lab.a:open", map[string]interface{}{"x": 1})
	require.NoError(t, err)
	data, err := Encode(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"direction":"in","extId":"lab.a","event":"command.invoke","args":["lab.a:open",{"x":1}],"ts":7}`, string(data))
}

func TestDecodeAcceptsFractionalTS(t *testing.T) {
	env, err := Decode("lab.a", []byte(`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":["hi","info"],"ts":1700000000123.5}`))
	require.NoError(t, err)
	assert.Equal(t, 1700000000123.5, env.TS)
	assert.Equal(t, "ui.showNotification", env.Event)

	env, err = Decode("lab.a", []byte(`{"direction":"out","extId":"lab.a","event":"ui.showNotification","args":["hi","info"],"ts":42}`))
	require.NoError(t, err)
	assert.Equal(t, float64(42), env.TS)
}
