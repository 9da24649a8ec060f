package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

// minInterval keeps setInterval(fn, 0) from spinning the loop
const minInterval = 10 * time.Millisecond

// job runs on the runtime's loop goroutine, the only goroutine that touches
// the VM
type job func(vm *goja.Runtime) error

type jsTimer struct {
	id     int64
	fn     goja.Callable
	args   []goja.Value
	delay  time.Duration
	repeat bool
	handle clock.Timer
}

// Runtime wraps a goja VM with an event loop and security controls. Every
// job runs under a watchdog that interrupts the VM once ScriptTimeout passes.
type Runtime struct {
	vm     *goja.Runtime
	config Config

	onFault   func(error)
	onConsole func(level string, args []interface{})

	mu      sync.Mutex
	queue   []job
	closed  bool
	running uint64 // generation of the job under the watchdog, 0 when idle
	gen     uint64
	wake    chan struct{}
	done    chan struct{}

	// Loop goroutine only
	timers    map[int64]*jsTimer
	nextTimer int64
}

// newRuntime creates a runtime and starts its loop. onFault receives every
// error a job ends with; onConsole receives console output.
func newRuntime(config Config, onFault func(error), onConsole func(string, []interface{})) *Runtime {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	vm := goja.New()
	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	r := &Runtime{
		vm:        vm,
		config:    config,
		onFault:   onFault,
		onConsole: onConsole,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		timers:    make(map[int64]*jsTimer),
	}
	r.setupGlobals()

	go r.run()
	return r
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() {
	// Remove dangerous globals
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("eval", goja.Undefined())

	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(level, r.makeConsoleFunc(level))
	}
	r.vm.Set("console", console)

	r.vm.Set("setTimeout", r.makeTimerFunc(false))
	r.vm.Set("setInterval", r.makeTimerFunc(true))
	r.vm.Set("clearTimeout", r.clearTimer)
	r.vm.Set("clearInterval", r.clearTimer)
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if r.onConsole == nil {
			return goja.Undefined()
		}
		args := make([]interface{}, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			args = append(args, exportConsoleValue(arg))
		}
		r.onConsole(level, args)
		return goja.Undefined()
	}
}

// exportConsoleValue converts goja value to something JSON can carry
func exportConsoleValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	if goja.IsNull(val) {
		return nil
	}
	if obj, ok := val.(*goja.Object); ok {
		if obj.ClassName() == "Error" {
			if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
				return stack.String()
			}
			return obj.String()
		}
		if obj.ClassName() == "Function" {
			return obj.String()
		}
	}
	return val.Export()
}

func (r *Runtime) makeTimerFunc(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(r.vm.NewTypeError("timer callback must be a function"))
		}

		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		if repeat && delay < minInterval {
			delay = minInterval
		}

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		r.nextTimer++
		t := &jsTimer{id: r.nextTimer, fn: fn, args: args, delay: delay, repeat: repeat}
		r.timers[t.id] = t
		r.arm(t)
		return r.vm.ToValue(t.id)
	}
}

func (r *Runtime) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := r.timers[id]; ok {
		t.handle.Stop()
		delete(r.timers, id)
	}
	return goja.Undefined()
}

func (r *Runtime) arm(t *jsTimer) {
	t.handle = r.config.Clock.AfterFunc(t.delay, func() {
		r.enqueue(func(vm *goja.Runtime) error { return r.fire(t) })
	})
}

func (r *Runtime) fire(t *jsTimer) error {
	if r.timers[t.id] != t {
		return nil // cleared while queued
	}
	if !t.repeat {
		delete(r.timers, t.id)
	}
	_, err := t.fn(goja.Undefined(), t.args...)
	if t.repeat && r.timers[t.id] == t {
		r.arm(t)
	}
	return err
}

// enqueue schedules a job. It reports false once the runtime is closed.
func (r *Runtime) enqueue(j job) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, j)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return true
}

func (r *Runtime) next() (job, bool) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			j := r.queue[0]
			r.queue[0] = nil
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return j, true
		}
		if r.closed {
			r.mu.Unlock()
			return nil, false
		}
		r.mu.Unlock()
		<-r.wake
	}
}

func (r *Runtime) run() {
	defer close(r.done)
	defer r.stopTimers()

	for {
		j, ok := r.next()
		if !ok {
			return
		}
		if err := r.exec(j); err != nil && r.onFault != nil {
			r.onFault(err)
		}
	}
}

// exec runs one job under the watchdog
func (r *Runtime) exec(j job) (err error) {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.running = gen
	r.mu.Unlock()

	if r.config.ScriptTimeout > 0 {
		watchdog := time.AfterFunc(r.config.ScriptTimeout, func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.running == gen {
				r.vm.Interrupt(ErrScriptTimeout)
			}
		})
		defer watchdog.Stop()
	}

	defer func() {
		r.mu.Lock()
		r.running = 0
		r.vm.ClearInterrupt()
		r.mu.Unlock()

		if p := recover(); p != nil {
			err = fmt.Errorf("sandbox panic: %v", p)
		}
	}()

	return classify(j(r.vm))
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrScriptTimeout
	}
	return err
}

func (r *Runtime) stopTimers() {
	for id, t := range r.timers {
		t.handle.Stop()
		delete(r.timers, id)
	}
}

// Close stops accepting jobs. Jobs already queued still run.
func (r *Runtime) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop has exited.
func (r *Runtime) Done() <-chan struct{} {
	return r.done
}

// Eval runs src on the loop and returns its exported value.
func (r *Runtime) Eval(ctx context.Context, src string) (interface{}, error) {
	type result struct {
		val interface{}
		err error
	}
	ch := make(chan result, 1)

	ok := r.enqueue(func(vm *goja.Runtime) error {
		v, err := vm.RunString(src)
		if err != nil {
			ch <- result{err: classify(err)}
			return nil
		}
		var out interface{}
		if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			out = v.Export()
		}
		ch <- result{val: out}
		return nil
	})
	if !ok {
		return nil, ErrStopped
	}

	select {
	case res := <-ch:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		select {
		case res := <-ch:
			return res.val, res.err
		default:
			return nil, ErrStopped
		}
	}
}
