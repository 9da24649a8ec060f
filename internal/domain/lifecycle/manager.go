package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/bridge"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/command"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/install"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/notify"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/permission"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/registry"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/sandbox"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/id"
)

// DefaultHandshakeTimeout bounds activating -> active
const DefaultHandshakeTimeout = 10 * time.Second

var (
	// ErrUnknownCommand is returned when invoking a command nobody registered
	ErrUnknownCommand = errors.New("unknown command")
	// ErrNotActive is returned when an operation needs a running extension
	ErrNotActive = errors.New("extension is not active")
)

// Catalog is the registry view the manager activates from
type Catalog interface {
	Catalog(ctx context.Context) ([]manifest.Manifest, error)
	Manifest(ctx context.Context, id string) (manifest.Manifest, error)
	Payload(ctx context.Context, m manifest.Manifest) (registry.Payload, error)
	CheckUpdates(ctx context.Context, loaded map[string]string) ([]registry.Update, error)
	InvalidatePayload(id string)
}

// Sandboxes starts and stops execution contexts
type Sandboxes interface {
	Start(ctx context.Context, m manifest.Manifest, payload []byte, init sandbox.BridgeInit) (sandbox.Handle, error)
	Stop(h sandbox.Handle)
}

// DataBackend serves data.query
type DataBackend interface {
	Query(ctx context.Context, extID, schema, table string, params map[string]interface{}) (interface{}, error)
}

// KV is per-extension settings storage
type KV interface {
	Get(ctx context.Context, extID, key string) (any, error)
	Set(ctx context.Context, extID, key string, value any) error
	Delete(ctx context.Context, extID, key string) error
	Forget(extID string)
}

// Deps are the collaborators a Manager drives
type Deps struct {
	Catalog     Catalog
	Sandboxes   Sandboxes
	Installs    install.Store
	Permissions *permission.Manager
	Data        DataBackend
	KV          KV
	Commands    *command.Registry
	Notices     *notify.Queue
	Log         *ipclog.Log
}

// Options tunes a Manager. Zero values are usable.
type Options struct {
	HandshakeTimeout time.Duration
	EventHistory     int
	Clock            clock.Clock
	Logger           *logging.Logger
	Metrics          *monitoring.Metrics
}

// attempt is an activation in progress
type attempt struct {
	cancel context.CancelFunc
}

// run is one live sandbox and what the host tracks about it
type run struct {
	extID     string
	handle    sandbox.Handle
	approved  manifest.Set
	cancel    context.CancelFunc
	handshake chan error
	settled   atomic.Bool
	topics    map[string]struct{}
}

// signal settles the handshake. Only the first call counts; it reports
// whether this call was it.
func (r *run) signal(err error) bool {
	if !r.settled.CompareAndSwap(false, true) {
		return false
	}
	r.handshake <- err
	return true
}

// Manager is the lifecycle state machine. It owns the store and is the
// only component that dispatches transitions.
type Manager struct {
	deps       Deps
	opts       Options
	store      *Store
	dispatcher *bridge.Dispatcher
	logger     *zap.Logger
	session    id.SessionID // changes on every host start

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	attempts map[string]*attempt
	runs     map[string]*run
}

// NewManager wires a manager. Deps.Catalog, Sandboxes, Installs and
// Permissions are required; the registries, queue and log are created when
// nil.
func NewManager(deps Deps, opts Options) *Manager {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if deps.Commands == nil {
		deps.Commands = command.NewRegistry()
	}
	if deps.Notices == nil {
		deps.Notices = notify.NewQueue(opts.Clock, 0)
	}
	if deps.Log == nil {
		deps.Log = ipclog.New(opts.Clock, ipclog.DefaultRetention)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		deps:     deps,
		opts:     opts,
		store:    NewStore(opts.Clock, opts.EventHistory),
		session:  id.NewSessionID(),
		logger:   opts.Logger.Named("lifecycle"),
		ctx:      ctx,
		cancel:   cancel,
		attempts: make(map[string]*attempt),
		runs:     make(map[string]*run),
	}
	m.dispatcher = bridge.NewDispatcher(host{m}, host{m}, deps.Log, opts.Metrics, opts.Logger.Logger)

	states := make([]string, 0, len(States()))
	for _, s := range States() {
		states = append(states, string(s))
	}
	m.store.Watch(func() {
		m.opts.Metrics.SetExtensionStates(m.store.Counts(), states)
	})
	deps.Notices.OnChange(m.store.Notify)
	deps.Permissions.OnChange(m.store.Notify)
	return m
}

// Session identifies this host run. Console clients compare it to notice
// a restart.
func (m *Manager) Session() string { return m.session.String() }

// Store exposes the read side of the state store
func (m *Manager) Store() *Store { return m.store }

// Log is the bridge message log
func (m *Manager) Log() *ipclog.Log { return m.deps.Log }

// Permissions is the prompt queue
func (m *Manager) Permissions() *permission.Manager { return m.deps.Permissions }

// Watch registers f to run after any observable change
func (m *Manager) Watch(f func()) func() { return m.store.Watch(f) }

// SyncCatalog loads the registry catalog and activates every extension
// that already has an install record.
func (m *Manager) SyncCatalog(ctx context.Context) error {
	entries, err := m.deps.Catalog.Catalog(ctx)
	if err != nil {
		return err
	}
	for _, man := range entries {
		if err := m.store.Dispatch(Upsert{Manifest: man}); err != nil {
			return err
		}
	}

	installs, err := m.deps.Installs.List(ctx)
	if err != nil {
		return faults.New(faults.FetchFailure, "", "list installs", err)
	}
	for _, rec := range installs {
		if err := m.store.Dispatch(SetInstalled{ExtID: rec.ExtensionID, Installed: true}); err != nil {
			m.logger.Warn("Install record for unknown extension", zap.String("ext_id", rec.ExtensionID))
			continue
		}
		switch m.store.StateOf(rec.ExtensionID) {
		case StateAvailable, StateInactive:
			if err := m.Activate(rec.ExtensionID); err != nil {
				m.logger.Warn("Auto-activation skipped", zap.String("ext_id", rec.ExtensionID), zap.Error(err))
			}
		}
	}

	m.logger.Info("Catalog synced", zap.Int("extensions", len(entries)), zap.Int("installed", len(installs)))
	return nil
}

// Updates reports newer compatible versions of loaded extensions
func (m *Manager) Updates(ctx context.Context) ([]registry.Update, error) {
	loaded := make(map[string]string)
	for _, e := range m.store.List() {
		if e.Installed {
			loaded[e.ID] = e.Version
		}
	}
	return m.deps.Catalog.CheckUpdates(ctx, loaded)
}

// Activate moves id toward active. It returns once the extension is
// fetching; the rest of the pipeline runs in the background and its
// outcome shows up in the store.
func (m *Manager) Activate(id string) error {
	if err := m.store.Dispatch(Transition{ExtID: id, To: StateFetching}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(m.ctx)
	a := &attempt{cancel: cancel}
	m.mu.Lock()
	m.attempts[id] = a
	m.mu.Unlock()

	m.logger.Info("Activating extension", zap.String("ext_id", id))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.finishAttempt(id, a)
		m.activate(ctx, id)
	}()
	return nil
}

func (m *Manager) finishAttempt(id string, a *attempt) {
	m.mu.Lock()
	if m.attempts[id] == a {
		delete(m.attempts, id)
	}
	m.mu.Unlock()
	a.cancel()
}

func (m *Manager) activate(ctx context.Context, id string) {
	man, err := m.deps.Catalog.Manifest(ctx, id)
	if err == nil {
		var payload registry.Payload
		payload, err = m.deps.Catalog.Payload(ctx, man)
		if err == nil {
			m.gateAndStart(ctx, man, payload)
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if _, ok := faults.KindOf(err); !ok {
		err = faults.New(faults.FetchFailure, id, "fetch", err)
	}
	m.fail(id, err)
}

func (m *Manager) gateAndStart(ctx context.Context, man manifest.Manifest, payload registry.Payload) {
	id := man.ID
	if err := m.store.Dispatch(Transition{ExtID: id, To: StateActivating, Manifest: &man}); err != nil {
		return
	}

	approved, err := m.deps.Permissions.Gate(ctx, man)
	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(err, faults.PermissionDenied):
		m.opts.Metrics.RecordActivation("denied")
		m.transition(id, StateInactive, nil)
		return
	case err != nil:
		m.fail(id, err)
		return
	}
	m.dispatch(SetInstalled{ExtID: id, Installed: true})

	h, err := m.deps.Sandboxes.Start(ctx, man, payload.Body, sandbox.BridgeInit{
		ExtID:     id,
		Abandoned: m.abandoned(id),
	})
	if err != nil {
		if _, ok := faults.KindOf(err); !ok {
			err = faults.New(faults.RuntimeFault, id, "sandbox.start", err)
		}
		m.fail(id, err)
		return
	}

	runCtx, runCancel := context.WithCancel(m.ctx)
	r := &run{
		extID:     id,
		handle:    h,
		approved:  approved,
		cancel:    runCancel,
		handshake: make(chan error, 1),
		topics:    make(map[string]struct{}),
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		runCancel()
		m.deps.Sandboxes.Stop(h)
		return
	}
	m.runs[id] = r
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pump(runCtx, r)

	timer := m.opts.Clock.AfterFunc(m.opts.HandshakeTimeout, func() {
		r.signal(faults.Newf(faults.ActivationTimeout, id, "handshake", "no handshake within %s", m.opts.HandshakeTimeout))
	})
	defer timer.Stop()

	select {
	case err := <-r.handshake:
		if err != nil {
			m.crash(r, err)
			return
		}
	case <-ctx.Done():
		return
	}

	if man.Kind == manifest.KindIframe {
		m.dispatch(SetDocument{ExtID: id})
	}
	if err := m.store.Dispatch(Transition{ExtID: id, To: StateActive}); err != nil {
		return
	}
	m.opts.Metrics.RecordActivation("active")
	m.logger.Info("Extension active", zap.String("ext_id", id), zap.String("version", man.Version))
}

// pump feeds one sandbox's output through the dispatcher in arrival order.
// Remote calls run on their own goroutine so a slow backend does not hold
// up the rest of the extension's messages.
func (m *Manager) pump(ctx context.Context, r *run) {
	defer m.wg.Done()
	for msg := range r.handle.Messages() {
		if msg.Fault != nil {
			m.sandboxFault(r, msg.Fault)
			continue
		}
		env, ok := m.dispatcher.Accept(r.extID, msg.Data)
		if !ok {
			continue
		}
		if c, known := bridge.Lookup(env.Event); known && c.Remote() {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.respond(r, m.dispatcher.Process(ctx, r.extID, r.approved, env))
			}()
			continue
		}
		m.respond(r, m.dispatcher.Process(ctx, r.extID, r.approved, env))
	}
}

func (m *Manager) respond(r *run, reply *bridge.Envelope) {
	if reply == nil {
		return
	}
	if err := r.handle.Post(*reply); err != nil {
		m.logger.Debug("Reply not delivered", zap.String("ext_id", r.extID), zap.Error(err))
	}
}

// sandboxFault handles an uncaught exception, watchdog interrupt or
// extension.error. Before the handshake it fails activation; after it the
// extension crashes.
func (m *Manager) sandboxFault(r *run, err error) {
	if !r.signal(err) {
		m.crash(r, err)
	}
}

func (m *Manager) abandoned(extID string) func(callID, event string) {
	return func(callID, event string) {
		m.deps.Log.Append(ipclog.Entry{
			Direction: ipclog.Host,
			ExtID:     extID,
			Event:     event,
			CallID:    callID,
			Error:     faults.Timeout.Error(),
		})
		m.logger.Warn("Call abandoned", zap.String("ext_id", extID), zap.String("event", event), zap.String("id", callID))
	}
}

// detach removes r from the live set if it is still current
func (m *Manager) detach(r *run) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[r.extID] != r {
		return false
	}
	delete(m.runs, r.extID)
	return true
}

// teardown stops the sandbox and drops everything it contributed
func (m *Manager) teardown(r *run) {
	r.cancel()
	m.deps.Sandboxes.Stop(r.handle)
	removed := m.deps.Commands.RemoveExtension(r.extID)
	m.dispatch(HideStatus{ExtID: r.extID})
	m.logger.Debug("Sandbox torn down", zap.String("ext_id", r.extID), zap.Int("commands", removed))
}

// crash tears down r and moves its extension to error
func (m *Manager) crash(r *run, err error) {
	if !m.detach(r) {
		return
	}
	m.teardown(r)
	m.fail(r.extID, err)
}

func (m *Manager) fail(id string, err error) {
	kind, _ := faults.KindOf(err)
	m.opts.Metrics.RecordActivation(string(kind))
	m.logger.Error("Extension failed", zap.String("ext_id", id), zap.String("kind", string(kind)), zap.Error(err))
	m.transition(id, StateError, err)
}

func (m *Manager) transition(id string, to State, err error) {
	if derr := m.store.Dispatch(Transition{ExtID: id, To: to, Err: err}); derr != nil {
		m.logger.Debug("Transition skipped", zap.String("ext_id", id), zap.Error(derr))
	}
}

func (m *Manager) dispatch(a Action) {
	if err := m.store.Dispatch(a); err != nil {
		m.logger.Debug("Action skipped", zap.Error(err))
	}
}

// Deactivate tears down a running or pending activation and moves the
// extension to inactive. Pending calls reject with Disposed.
func (m *Manager) Deactivate(id string) error {
	st := m.store.StateOf(id)
	if st == "" {
		return ErrUnknownExtension
	}
	if !CanTransition(st, StateInactive) {
		return &TransitionError{ExtID: id, From: st, To: StateInactive}
	}

	m.mu.Lock()
	if a, ok := m.attempts[id]; ok {
		a.cancel()
		delete(m.attempts, id)
	}
	r := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()

	if r != nil {
		m.teardown(r)
	}
	m.logger.Info("Extension deactivated", zap.String("ext_id", id))
	return m.store.Dispatch(Transition{ExtID: id, To: StateInactive})
}

// Retry re-enters the pipeline for an extension in error. The payload is
// fetched again; only the manifest carries over.
func (m *Manager) Retry(id string) error {
	if st := m.store.StateOf(id); st != StateError {
		if st == "" {
			return ErrUnknownExtension
		}
		return &TransitionError{ExtID: id, From: st, To: StateFetching}
	}
	m.deps.Catalog.InvalidatePayload(id)
	return m.Activate(id)
}

// Reload deactivates a live extension, then activates it again with a
// freshly fetched payload
func (m *Manager) Reload(id string) error {
	switch m.store.StateOf(id) {
	case "":
		return ErrUnknownExtension
	case StateError:
		return m.Retry(id)
	case StateActive, StateActivating, StateFetching:
		if err := m.Deactivate(id); err != nil {
			return err
		}
	}
	m.deps.Catalog.InvalidatePayload(id)
	return m.Activate(id)
}

// Uninstall deactivates the extension, deletes its install record and
// returns it to available.
func (m *Manager) Uninstall(ctx context.Context, id string) error {
	switch m.store.StateOf(id) {
	case "":
		return ErrUnknownExtension
	case StateAvailable, StateInactive:
	default:
		if err := m.Deactivate(id); err != nil {
			return err
		}
	}

	if err := m.deps.Installs.Delete(ctx, id); err != nil && !errors.Is(err, install.ErrNotFound) {
		return faults.New(faults.FetchFailure, id, "uninstall", err)
	}
	if m.deps.KV != nil {
		m.deps.KV.Forget(id)
	}
	m.dispatch(SetInstalled{ExtID: id, Installed: false})
	if m.store.StateOf(id) == StateInactive {
		m.transition(id, StateAvailable, nil)
	}
	m.logger.Info("Extension uninstalled", zap.String("ext_id", id))
	return nil
}

// Select focuses id in the UI
func (m *Manager) Select(id string) error {
	return m.store.Dispatch(Select{ExtID: id})
}

// Document renders the live document of an iframe extension
func (m *Manager) Document(id string) (string, error) {
	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()
	if r == nil || m.store.StateOf(id) != StateActive {
		return "", ErrNotActive
	}
	if r.handle.Kind() != manifest.KindIframe {
		return "", fmt.Errorf("%s is a %s extension", id, r.handle.Kind())
	}
	return r.handle.Document(), nil
}

// Commands is the palette list: builtins, then commands of active
// extensions, filtered by query. fuzzy switches to ranked matching.
func (m *Manager) Commands(query string, fuzzy bool) []command.Match {
	cmds := command.Builtins()
	for _, c := range m.deps.Commands.Live() {
		if m.store.StateOf(c.ExtensionID) == StateActive {
			cmds = append(cmds, c)
		}
	}
	if fuzzy {
		return command.Rank(cmds, query)
	}
	filtered := command.Filter(cmds, query)
	out := make([]command.Match, len(filtered))
	for i, c := range filtered {
		out[i] = command.Match{Command: c}
	}
	return out
}

// Invoke runs a palette command. Builtins are handled here; extension
// commands are forwarded to the owner as command.invoke.
func (m *Manager) Invoke(ctx context.Context, extID, cmdID string, args []interface{}) error {
	defer m.dispatch(ClosePalette{})

	if extID == command.HostID {
		switch cmdID {
		case command.RefreshID:
			m.deps.Log.Append(ipclog.Entry{Direction: ipclog.Host, ExtID: command.HostID, Event: "data.refresh"})
			return m.broadcast(command.HostID, "data.refresh", nil)
		case command.ConsoleID:
			return m.store.Dispatch(ToggleConsole{})
		}
		return ErrUnknownCommand
	}

	if _, ok := m.deps.Commands.Find(extID, cmdID); !ok {
		return ErrUnknownCommand
	}
	m.mu.Lock()
	r := m.runs[extID]
	m.mu.Unlock()
	if r == nil || m.store.StateOf(extID) != StateActive {
		return ErrNotActive
	}

	env, err := bridge.Push(extID, bridge.EventCommandInvoke, m.deps.Log.Now(), append([]interface{}{cmdID}, args...)...)
	if err != nil {
		return faults.New(faults.InvalidArgument, extID, bridge.EventCommandInvoke, err)
	}
	return m.send(r, env)
}

// send posts a host event and logs it
func (m *Manager) send(r *run, env bridge.Envelope) error {
	err := r.handle.Post(env)
	m.deps.Log.Append(ipclog.Entry{
		Direction: ipclog.In,
		ExtID:     r.extID,
		Event:     env.Event,
		Args:      env.LoggedArgs(),
		Error:     errString(err),
	})
	return err
}

// Notifications is the notification stack, newest first
func (m *Manager) Notifications() []notify.Entry {
	return m.deps.Notices.List()
}

// Dismiss removes one notification
func (m *Manager) Dismiss(nid string) bool {
	ok := m.deps.Notices.Dismiss(id.NotificationID(nid))
	if ok {
		m.store.Notify()
	}
	return ok
}

// TogglePalette flips the palette open flag
func (m *Manager) TogglePalette() { m.dispatch(TogglePalette{}) }

// ClosePalette closes the palette
func (m *Manager) ClosePalette() { m.dispatch(ClosePalette{}) }

// ToggleConsole flips the console open flag
func (m *Manager) ToggleConsole() { m.dispatch(ToggleConsole{}) }

// Snapshot is everything the console renders, read at one point in time
type Snapshot struct {
	Session       string             `json:"session"`
	Version       uint64             `json:"version"`
	Extensions    []Extension        `json:"extensions"`
	Commands      []command.Match    `json:"commands"`
	Notifications []notify.Entry     `json:"notifications"`
	Prompt        *permission.Prompt `json:"prompt,omitempty"`
	QueuedPrompts int                `json:"queuedPrompts"`
	Status        []StatusItem       `json:"status"`
	PaletteOpen   bool               `json:"paletteOpen"`
	ConsoleOpen   bool               `json:"consoleOpen"`
	Selected      string             `json:"selected,omitempty"`
	LogSize       int                `json:"logSize"`
}

// Snapshot reads the current state
func (m *Manager) Snapshot() Snapshot {
	palette, console, selected := m.store.UI()
	s := Snapshot{
		Session:       m.session.String(),
		Version:       m.store.Version(),
		Extensions:    m.store.List(),
		Commands:      m.Commands("", false),
		Notifications: m.deps.Notices.List(),
		QueuedPrompts: len(m.deps.Permissions.Pending()),
		Status:        m.store.Status(),
		PaletteOpen:   palette,
		ConsoleOpen:   console,
		Selected:      selected,
		LogSize:       m.deps.Log.Len(),
	}
	if p, ok := m.deps.Permissions.Current(); ok {
		s.Prompt = &p
	}
	return s
}

// Shutdown denies open prompts, stops every sandbox and waits for the
// background goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.deps.Permissions.DenyAll()

	m.mu.Lock()
	for id, a := range m.attempts {
		a.cancel()
		delete(m.attempts, id)
	}
	runs := make([]*run, 0, len(m.runs))
	for id, r := range m.runs {
		runs = append(runs, r)
		delete(m.runs, id)
	}
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, r := range runs {
		r := r
		g.Go(func() error {
			m.teardown(r)
			m.transition(r.extID, StateInactive, nil)
			return nil
		})
	}
	_ = g.Wait()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Lifecycle manager stopped", zap.Int("stopped", len(runs)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
