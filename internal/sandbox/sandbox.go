package sandbox

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/bridge"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/faults"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/manifest"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// sandbox is one running extension. All VM access happens on the runtime
// loop; the host side talks to it through Post and Messages.
type sandbox struct {
	extID   string
	kind    manifest.Kind
	clock   clock.Clock
	rt      *Runtime
	corr    *bridge.Correlator
	doc     *Document
	logger  *zap.Logger
	metrics *monitoring.Metrics

	messages chan Message
	closing  chan struct{}
	stopOnce sync.Once

	// Loop goroutine only
	receive  goja.Callable
	activate goja.Callable
	aborted  bool
}

func newSandbox(cfg Config, m manifest.Manifest, init BridgeInit, logger *zap.Logger, metrics *monitoring.Metrics) *sandbox {
	s := &sandbox{
		extID:    init.ExtID,
		kind:     m.Kind,
		clock:    cfg.Clock,
		logger:   logger,
		metrics:  metrics,
		messages: make(chan Message, cfg.MessageBuffer),
		closing:  make(chan struct{}),
	}
	s.corr = bridge.NewCorrelator(s.extID, cfg.Clock, cfg.CallTimeout, init.Abandoned)
	s.corr.OnSettle(func(reply bridge.Envelope) {
		if err := s.deliver(reply); err != nil {
			s.logger.Debug("Reply dropped", zap.String("event", reply.Event), zap.Error(err))
		}
	})
	s.rt = newRuntime(cfg, s.fault, s.console)

	go func() {
		<-s.rt.Done()
		close(s.messages)
	}()
	return s
}

func (s *sandbox) ExtID() string            { return s.extID }
func (s *sandbox) Kind() manifest.Kind      { return s.kind }
func (s *sandbox) Messages() <-chan Message { return s.messages }
func (s *sandbox) Done() <-chan struct{}    { return s.rt.Done() }

func (s *sandbox) Document() string {
	if s.doc == nil {
		return ""
	}
	return s.doc.Render()
}

// Post delivers a host envelope. Replies settle their pending call; late
// replies to calls that already timed out are dropped.
func (s *sandbox) Post(env bridge.Envelope) error {
	select {
	case <-s.closing:
		return ErrStopped
	default:
	}

	if env.ID != "" {
		if !s.corr.Resolve(env) {
			s.logger.Debug("Late reply dropped", zap.String("event", env.Event), zap.String("id", env.ID))
		}
		return nil
	}
	return s.deliver(env)
}

func (s *sandbox) deliver(env bridge.Envelope) error {
	data, err := bridge.Encode(env)
	if err != nil {
		return err
	}
	ok := s.rt.enqueue(func(vm *goja.Runtime) error {
		if s.receive == nil {
			return nil
		}
		_, err := s.receive(goja.Undefined(), vm.ToValue(string(data)))
		return err
	})
	if !ok {
		return ErrStopped
	}
	return nil
}

// emit hands a message to the host unless the sandbox is closing
func (s *sandbox) emit(m Message) {
	select {
	case s.messages <- m:
	case <-s.closing:
	}
}

// post is the native side of the bootstrap's __post
func (s *sandbox) post(call goja.FunctionCall) goja.Value {
	data := []byte(call.Argument(0).String())

	var head struct {
		ID    string `json:"id"`
		Event string `json:"event"`
	}
	if err := sonic.Unmarshal(data, &head); err == nil && head.ID != "" {
		s.corr.Open(head.ID, head.Event)
	}

	s.emit(Message{Data: data})
	return goja.Undefined()
}

func (s *sandbox) console(level string, args []interface{}) {
	env, err := bridge.Push(s.extID, bridge.EventLog, s.clock.Now().UnixMilli(), append([]interface{}{level}, args...)...)
	if err != nil {
		s.logger.Warn("Console output not serializable", zap.String("level", level), zap.Error(err))
		return
	}
	env.Direction = ipclog.Out
	data, err := bridge.Encode(env)
	if err != nil {
		return
	}
	s.emit(Message{Data: data})
}

func (s *sandbox) fault(err error) {
	kind := "exception"
	if errors.Is(err, ErrScriptTimeout) {
		kind = "timeout"
	}
	s.metrics.RecordSandboxFault(kind)
	s.emit(Message{Fault: faults.New(faults.RuntimeFault, s.extID, "script", err)})
}

// install defines the native bridge and runs the bootstrap. Must run on the
// loop.
func (s *sandbox) install(vm *goja.Runtime) error {
	prog, err := bootstrapProgram()
	if err != nil {
		return fmt.Errorf("compile bootstrap: %w", err)
	}

	vm.Set("__extId", s.extID)
	vm.Set("__kind", string(s.kind))
	vm.Set("__post", s.post)

	if s.doc != nil {
		if err := newDOMProxy(vm, s.doc).install(); err != nil {
			return fmt.Errorf("install document: %w", err)
		}
	}

	if _, err := vm.RunProgram(prog); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	global := vm.GlobalObject()
	var ok bool
	if s.receive, ok = goja.AssertFunction(global.Get("__receive")); !ok {
		return errors.New("bootstrap did not define __receive")
	}
	if s.activate, ok = goja.AssertFunction(global.Get("__activate")); !ok {
		return errors.New("bootstrap did not define __activate")
	}
	for _, name := range []string{"__extId", "__kind", "__post", "__receive", "__activate"} {
		global.Delete(name)
	}
	return nil
}

// startWorker evaluates a worker bundle and activates it
func (s *sandbox) startWorker(source string) {
	s.rt.enqueue(func(vm *goja.Runtime) error {
		if err := s.install(vm); err != nil {
			return err
		}
		if _, err := vm.RunScript(s.extID+".js", source); err != nil {
			return err
		}
		_, err := s.activate(goja.Undefined())
		return err
	})
}

// startIframe runs the document scripts in order, then activates. A script
// that throws skips the rest, the way a failing bundle would.
func (s *sandbox) startIframe() {
	s.rt.enqueue(s.step(func(vm *goja.Runtime) error {
		return s.install(vm)
	}))
	for _, script := range s.doc.Scripts() {
		script := script
		s.rt.enqueue(s.step(func(vm *goja.Runtime) error {
			_, err := vm.RunScript(s.extID+"/"+script.Name, script.Source)
			return err
		}))
	}
	s.rt.enqueue(s.step(func(vm *goja.Runtime) error {
		_, err := s.activate(goja.Undefined())
		return err
	}))
}

// step wraps a startup job so a failure skips the ones after it
func (s *sandbox) step(j job) job {
	return func(vm *goja.Runtime) error {
		if s.aborted {
			return nil
		}
		err := j(vm)
		if err != nil {
			s.aborted = true
		}
		return err
	}
}

// stop tears the sandbox down: outbound messages are dropped, pending calls
// are rejected with Disposed, queued jobs drain and the loop exits.
func (s *sandbox) stop() {
	s.stopOnce.Do(func() {
		close(s.closing)
		if n := s.corr.DisposeAll(); n > 0 {
			s.logger.Debug("Disposed pending calls", zap.Int("count", n))
		}
		s.rt.Close()
	})
	<-s.rt.Done()
}
