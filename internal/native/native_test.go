package native

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		code string
		args []string
		want string
		err  error
	}{
		{"no args untouched", "({}).x", nil, "({}).x", nil},
		{"positional", "{} + {}", []string{"1", "2"}, "1 + 2", nil},
		{"escaped braces", "(() => {{ return {} }})()", []string{`"v"`}, `(() => { return "v" })()`, nil},
		{"too few placeholders", "f({})", []string{"1", "2"}, "", ErrPlaceholders},
		{"too many placeholders", "f({}, {})", []string{"1"}, "", ErrPlaceholders},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.code, tt.args...)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatArgCeiling(t *testing.T) {
	args := make([]string, MaxScriptArgs+1)
	_, err := Format("x", args...)
	assert.ErrorIs(t, err, ErrTooManyArgs)
}

func TestSchemeMatches(t *testing.T) {
	assert.True(t, SchemeMatches("myscheme", "myscheme://path"))
	assert.True(t, SchemeMatches("myscheme", "myscheme:opaque"))
	assert.False(t, SchemeMatches("myscheme", "othermeme://x"))
	assert.False(t, SchemeMatches("my", "myscheme://path"))
	assert.False(t, SchemeMatches("", "://"))
}

func TestSchemeErrorNames(t *testing.T) {
	for _, code := range []SchemeError{SchemeNotFound, SchemeInvalid, SchemeDenied, SchemeFailed} {
		parsed, ok := ParseSchemeError(code.String())
		require.True(t, ok)
		assert.Equal(t, code, parsed)
	}
	assert.Equal(t, 404, SchemeNotFound.Status())
	_, ok := ParseSchemeError("teapot")
	assert.False(t, ok)
}

func TestLookupPartitions(t *testing.T) {
	_, c, ok := Lookup("resize")
	require.True(t, ok)
	assert.Equal(t, WindowEvent, c)

	_, c, ok = Lookup("dom-ready")
	require.True(t, ok)
	assert.Equal(t, WebEvent, c)

	_, _, ok = Lookup("scroll")
	assert.False(t, ok)

	assert.True(t, EventNavigate.Gating())
	assert.True(t, EventClose.Gating())
	assert.False(t, EventClosed.Gating())
}

func TestSubscriptions(t *testing.T) {
	var s Subscriptions

	id, err := s.Subscribe(EventTitle, false)
	require.NoError(t, err)
	assert.NotZero(t, id)

	onceID, err := s.Subscribe(EventLoad, true)
	require.NoError(t, err)
	assert.Zero(t, onceID)

	_, err = s.Subscribe(Name("bogus"), false)
	assert.ErrorIs(t, err, ErrUnsupported)

	assert.True(t, s.Fire(EventLoad))
	assert.False(t, s.Fire(EventLoad), "one-shot subscription must disarm")

	assert.True(t, s.Fire(EventTitle))
	assert.True(t, s.Fire(EventTitle))
	s.Unsubscribe(EventTitle, id)
	assert.False(t, s.Armed(EventTitle))

	_, _ = s.Subscribe(EventResize, false)
	_, _ = s.Subscribe(EventResize, true)
	s.ClearEvent(EventResize)
	assert.False(t, s.Fire(EventResize))
}

func TestFuture(t *testing.T) {
	f := NewFuture()
	go f.Complete(json.RawMessage(`42`), nil)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(v))

	f.Complete(nil, errors.New("ignored"))
	_, err = f.Await(context.Background())
	assert.NoError(t, err, "first completion wins")

	pending := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pending.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool(t *testing.T) {
	p := NewWorkerPool(2, zerolog.Nop())

	var ran atomic.Int32
	require.NoError(t, p.Submit(func() { ran.Add(1) }))
	assert.EqualValues(t, 1, ran.Load(), "submit waits for completion")

	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		require.NoError(t, p.Emplace(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	assert.EqualValues(t, 4, ran.Load())

	require.NoError(t, p.Submit(func() { panic("contained") }))

	p.Close()
	assert.Error(t, p.Submit(func() {}))
	assert.Error(t, p.Emplace(func() {}))
}

func TestPropertyNames(t *testing.T) {
	for _, p := range Properties() {
		assert.NotEqual(t, "unknown", p.String())
	}
	assert.Equal(t, "alwaysOnTop", PropAlwaysOnTop.String())
}

func TestParseEdge(t *testing.T) {
	tests := []struct {
		in   string
		want Edge
		ok   bool
	}{
		{"top", EdgeTop, true},
		{"bottom-right", EdgeBottom | EdgeRight, true},
		{" Top-Left ", EdgeTop | EdgeLeft, true},
		{"left-right", 0, false},
		{"top-bottom", 0, false},
		{"middle", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseEdge(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, got, mustParseEdge(t, got.String()))
			}
		})
	}
	assert.False(t, Edge(16).Valid())
	assert.Equal(t, "bottom-right", EdgeDefault.String())
}

func mustParseEdge(t *testing.T, s string) Edge {
	t.Helper()
	e, ok := ParseEdge(s)
	require.True(t, ok, s)
	return e
}
