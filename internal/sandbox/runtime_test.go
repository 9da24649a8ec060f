package sandbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/shared/clock"
)

type consoleLine struct {
	level string
	args  []interface{}
}

type recorder struct {
	mu      sync.Mutex
	faults  []error
	console []consoleLine
}

func (r *recorder) fault(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, err)
}

func (r *recorder) log(level string, args []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.console = append(r.console, consoleLine{level: level, args: args})
}

func (r *recorder) faultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.faults)
}

func newTestRuntime(t *testing.T, cfg Config) (*Runtime, *recorder) {
	t.Helper()
	rec := &recorder{}
	rt := newRuntime(cfg, rec.fault, rec.log)
	t.Cleanup(func() {
		rt.Close()
		<-rt.Done()
	})
	return rt, rec
}

func TestRuntimeEval(t *testing.T) {
	rt, _ := newTestRuntime(t, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name   string
		script string
		want   interface{}
	}{
		{name: "simple return", script: "42", want: 42},
		{name: "math operations", script: "Math.sqrt(16)", want: 4},
		{name: "string operations", script: "'hello'.toUpperCase()", want: "HELLO"},
		{name: "json available", script: "JSON.stringify({a: [1, 2]})", want: `{"a":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rt.Eval(ctx, tt.script)
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, got)
		})
	}
}

func TestRuntimeSecurity(t *testing.T) {
	rt, _ := newTestRuntime(t, DefaultConfig())

	for _, global := range []string{"require", "process", "eval"} {
		t.Run(global, func(t *testing.T) {
			got, err := rt.Eval(context.Background(), "typeof "+global)
			require.NoError(t, err)
			assert.Equal(t, "undefined", got)
		})
	}
}

func TestRuntimeWatchdog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptTimeout = 50 * time.Millisecond
	rt, _ := newTestRuntime(t, cfg)

	start := time.Now()
	_, err := rt.Eval(context.Background(), "for (;;) {}")
	assert.ErrorIs(t, err, ErrScriptTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The interrupt does not leak into the next job
	got, err := rt.Eval(context.Background(), "1 + 1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got)
}

func TestRuntimeTimersFollowClock(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.Clock = clk
	rt, _ := newTestRuntime(t, cfg)
	ctx := context.Background()

	_, err := rt.Eval(ctx, `
		var hits = 0;
		setTimeout(function (n) { hits += n; }, 1000, 1);
		var cancelled = setTimeout(function () { hits += 100; }, 1000);
		clearTimeout(cancelled);
	`)
	require.NoError(t, err)

	clk.Advance(999 * time.Millisecond)
	got, err := rt.Eval(ctx, "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)

	clk.Advance(time.Millisecond)
	got, err = rt.Eval(ctx, "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)
}

func TestRuntimeInterval(t *testing.T) {
	clk := clock.Fake(time.Unix(0, 0))
	cfg := DefaultConfig()
	cfg.Clock = clk
	rt, _ := newTestRuntime(t, cfg)
	ctx := context.Background()

	_, err := rt.Eval(ctx, `var ticks = 0; var iv = setInterval(function () { ticks++; }, 100);`)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clk.Advance(100 * time.Millisecond)
		// Eval queues behind the timer job, which re-arms the interval
		_, err = rt.Eval(ctx, "ticks")
		require.NoError(t, err)
	}

	got, err := rt.Eval(ctx, "clearInterval(iv); ticks")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)

	clk.Advance(time.Second)
	got, err = rt.Eval(ctx, "ticks")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)
	assert.Zero(t, clk.Pending())
}

func TestRuntimeConsole(t *testing.T) {
	rt, rec := newTestRuntime(t, DefaultConfig())

	_, err := rt.Eval(context.Background(), `console.warn("disk", 3, {a: true}); console.error(new Error("bad"))`)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.console, 2)
	assert.Equal(t, "warn", rec.console[0].level)
	assert.Equal(t, "disk", rec.console[0].args[0])
	assert.EqualValues(t, 3, rec.console[0].args[1])
	assert.Equal(t, map[string]interface{}{"a": true}, rec.console[0].args[2])
	assert.Equal(t, "error", rec.console[1].level)
	assert.Contains(t, rec.console[1].args[0], "bad")
}

func TestRuntimeJobErrorsAreFaults(t *testing.T) {
	rt, rec := newTestRuntime(t, DefaultConfig())

	require.True(t, rt.enqueue(func(vm *goja.Runtime) error {
		_, err := vm.RunString(`throw new Error("boom")`)
		return err
	}))

	assert.Eventually(t, func() bool { return rec.faultCount() == 1 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	var ex *goja.Exception
	assert.True(t, errors.As(rec.faults[0], &ex))
	assert.Contains(t, rec.faults[0].Error(), "boom")
	rec.mu.Unlock()
}

func TestRuntimeCloseDrainsQueue(t *testing.T) {
	rt := newRuntime(DefaultConfig(), nil, nil)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		rt.enqueue(func(*goja.Runtime) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		})
	}
	rt.Close()
	<-rt.Done()

	assert.Equal(t, 10, ran)
	assert.False(t, rt.enqueue(func(*goja.Runtime) error { return nil }))

	_, err := rt.Eval(context.Background(), "1")
	assert.ErrorIs(t, err, ErrStopped)
}
