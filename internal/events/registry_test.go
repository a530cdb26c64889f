package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/native"
)

type mockSubscriber struct {
	mock.Mock
}

func (m *mockSubscriber) Subscribe(name native.Name, once bool) (uint64, error) {
	args := m.Called(name, once)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockSubscriber) Unsubscribe(name native.Name, id uint64) {
	m.Called(name, id)
}

func (m *mockSubscriber) ClearEvent(name native.Name) {
	m.Called(name)
}

type fixture struct {
	loop *host.Loop
	reg  *Registry
	subs *native.Subscriptions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loop := host.New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(func() {
		loop.Stop()
		<-loop.Done()
	})
	subs := &native.Subscriptions{}
	return &fixture{loop: loop, reg: New(loop, subs, zerolog.Nop()), subs: subs}
}

// on registers the function produced by src under name.
func (f *fixture) on(t *testing.T, name, src string, once bool) {
	t.Helper()
	require.NoError(t, f.loop.Do(func(rt *sobek.Runtime) error {
		fn, err := rt.RunString(src)
		if err != nil {
			return err
		}
		return f.reg.Register(name, fn, once)
	}))
}

func (f *fixture) eval(t *testing.T, src string) any {
	t.Helper()
	var out any
	require.NoError(t, f.loop.Do(func(rt *sobek.Runtime) error {
		v, err := rt.RunString(src)
		if err != nil {
			return err
		}
		out = v.Export()
		return nil
	}))
	return out
}

// loopValue evaluates src on the loop and returns the resulting value.
func (f *fixture) loopValue(t *testing.T, src string) sobek.Value {
	t.Helper()
	var v sobek.Value
	require.NoError(t, f.loop.Do(func(rt *sobek.Runtime) error {
		var err error
		v, err = rt.RunString(src)
		return err
	}))
	return v
}

func TestOnceFiresAtMostOnce(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.calls = 0`)
	f.on(t, "title", `(function() { calls++ })`, true)

	f.reg.Emit(native.Title{Title: "a"})
	f.reg.Emit(native.Title{Title: "b"})

	assert.EqualValues(t, 1, f.eval(t, `calls`))
	assert.False(t, f.reg.Has("title"))
}

func TestOnceConcurrentEmissions(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.calls = 0`)
	f.on(t, "focus", `(function() { calls++ })`, true)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.reg.Emit(native.Focus{Focused: true})
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.eval(t, `calls`))
}

func TestEmitOrderAndArgs(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.log = []`)
	f.on(t, "resize", `(function(w, h) { log.push("first:" + w + "x" + h) })`, false)
	f.on(t, "resize", `(function(w, h) { log.push("second:" + w + "x" + h) })`, false)

	f.reg.Emit(native.Resize{Width: 800, Height: 600})

	assert.Equal(t, []any{"first:800x600", "second:800x600"}, f.eval(t, `log`))
}

func TestEventArgumentShapes(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.got = {}`)
	f.on(t, "navigated", `(function(url) { got.navigated = url })`, false)
	f.on(t, "favicon", `(function(icon) { got.favicon = icon })`, false)
	f.on(t, "load", `(function(state) { got.load = state })`, false)
	f.on(t, "dom-ready", `(function() { got.ready = arguments.length })`, false)
	f.on(t, "maximize", `(function(v) { got.maximize = v })`, false)

	f.reg.Emit(native.Navigated{URL: "https://example.com/"})
	f.reg.Emit(native.Favicon{})
	f.reg.Emit(native.Load{State: native.LoadFinished})
	f.reg.Emit(native.DOMReady{})
	f.reg.Emit(native.Maximize{Maximized: true})

	assert.Equal(t, map[string]any{
		"navigated": "https://example.com/",
		"favicon":   nil,
		"load":      "finished",
		"ready":     int64(0),
		"maximize":  true,
	}, f.eval(t, `got`))
}

func TestFaviconBytes(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.size = -1`)
	f.on(t, "favicon", `(function(icon) { size = icon.byteLength })`, false)

	f.reg.Emit(native.Favicon{Icon: []byte{1, 2, 3}})
	assert.EqualValues(t, 3, f.eval(t, `size`))
}

func TestUnsupportedEvent(t *testing.T) {
	f := newFixture(t)
	err := f.loop.Do(func(rt *sobek.Runtime) error {
		return f.reg.Register("scroll", rt.ToValue(func() {}), false)
	})
	assert.ErrorIs(t, err, ErrUnsupportedEvent)
	assert.False(t, f.subs.Armed("scroll"))
}

func TestRegisterRejectsNonFunction(t *testing.T) {
	f := newFixture(t)
	err := f.loop.Do(func(rt *sobek.Runtime) error {
		return f.reg.Register("title", rt.ToValue("nope"), false)
	})
	assert.ErrorIs(t, err, host.ErrNotCallable)
}

func TestOffByIdentityRemovesAllRegistrations(t *testing.T) {
	loop := host.New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(loop.Stop)

	sub := &mockSubscriber{}
	sub.On("Subscribe", native.EventTitle, false).Return(uint64(1), nil).Once()
	sub.On("Subscribe", native.EventTitle, false).Return(uint64(2), nil).Once()
	sub.On("Subscribe", native.EventTitle, false).Return(uint64(3), nil).Once()
	sub.On("Unsubscribe", native.EventTitle, uint64(1)).Return().Once()
	sub.On("Unsubscribe", native.EventTitle, uint64(2)).Return().Once()
	reg := New(loop, sub, zerolog.Nop())

	require.NoError(t, loop.Do(func(rt *sobek.Runtime) error {
		shared, err := rt.RunString(`(function() {})`)
		require.NoError(t, err)
		other, err := rt.RunString(`(function() {})`)
		require.NoError(t, err)

		require.NoError(t, reg.Register("title", shared, false))
		require.NoError(t, reg.Register("title", shared, false))
		require.NoError(t, reg.Register("title", other, false))

		assert.Equal(t, 2, reg.Off("title", shared))
		assert.Equal(t, 1, reg.Len("title"))
		assert.Equal(t, 0, reg.Off("title", shared))
		return nil
	}))
	sub.AssertExpectations(t)
}

func TestOffDuringSubscribeReleasesNativeSubscription(t *testing.T) {
	loop := host.New()
	go func() { _ = loop.Run(context.Background()) }()
	t.Cleanup(loop.Stop)

	sub := &mockSubscriber{}
	reg := New(loop, sub, zerolog.Nop())

	require.NoError(t, loop.Do(func(rt *sobek.Runtime) error {
		fn, err := rt.RunString(`(function() {})`)
		require.NoError(t, err)

		var removed int
		sub.On("Subscribe", native.EventTitle, false).Return(uint64(9), nil).Once().
			Run(func(mock.Arguments) { removed = reg.Off("title", fn) })
		sub.On("Unsubscribe", native.EventTitle, uint64(9)).Return().Once()

		require.NoError(t, reg.Register("title", fn, false))
		assert.Equal(t, 1, removed)
		assert.Zero(t, reg.Len("title"))
		return nil
	}))
	sub.AssertExpectations(t)
}

func TestConcurrentOnAndOff(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.handler = function() {}`)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.on(t, "title", `handler`, false)
		}()
		go func() {
			defer wg.Done()
			f.reg.Off("title", f.loopValue(t, `handler`))
		}()
	}
	wg.Wait()

	f.reg.Off("title", f.loopValue(t, `handler`))
	assert.Zero(t, f.reg.Len("title"))
	assert.False(t, f.subs.Armed(native.EventTitle))
}

func TestOffAll(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.calls = 0`)
	f.on(t, "closed", `(function() { calls++ })`, false)
	f.on(t, "closed", `(function() { calls++ })`, true)

	f.reg.OffAll("closed")
	assert.False(t, f.subs.Armed(native.EventClosed))

	f.reg.Emit(native.Closed{})
	assert.EqualValues(t, 0, f.eval(t, `calls`))
}

func TestReentrantRegistrationFromHandler(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.loop.Do(func(rt *sobek.Runtime) error {
		return rt.Set("subscribe", func(call sobek.FunctionCall) sobek.Value {
			if err := f.reg.Register(call.Argument(0).String(), call.Argument(1), false); err != nil {
				panic(rt.NewGoError(err))
			}
			return sobek.Undefined()
		})
	}))
	f.eval(t, `globalThis.calls = 0`)
	f.on(t, "title", `(function() {
		calls++
		subscribe("title", function() { calls += 10 })
	})`, true)

	done := make(chan struct{})
	go func() {
		f.reg.Emit(native.Title{Title: "x"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit deadlocked against reentrant registration")
	}

	assert.EqualValues(t, 1, f.eval(t, `calls`), "handler added during emission waits for the next one")
	f.reg.Emit(native.Title{Title: "y"})
	assert.EqualValues(t, 11, f.eval(t, `calls`))
}

func TestCloseReleasesEverything(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.calls = 0`)
	f.on(t, "title", `(function() { calls++ })`, false)

	f.reg.Close()
	f.reg.Emit(native.Title{Title: "after"})
	assert.EqualValues(t, 0, f.eval(t, `calls`))

	err := f.loop.Do(func(rt *sobek.Runtime) error {
		return f.reg.Register("title", rt.ToValue(func() {}), false)
	})
	assert.ErrorIs(t, err, native.ErrDestroyed)
}
