package host

import (
	"errors"
	"testing"
	"time"

	"github.com/grafana/sobek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredSettlesOnce(t *testing.T) {
	l := startLoop(t)

	var d *Deferred
	var p *sobek.Promise
	require.NoError(t, l.Do(func(rt *sobek.Runtime) error {
		d, p = NewDeferred(l, rt)
		assert.True(t, d.Resolve(1))
		assert.False(t, d.Resolve(2))
		assert.False(t, d.Reject("late"))
		return nil
	}))

	require.NoError(t, l.Do(func(*sobek.Runtime) error {
		assert.Equal(t, sobek.PromiseStateFulfilled, p.State())
		assert.EqualValues(t, 1, p.Result().Export())
		return nil
	}))
}

func TestDeferredSettleFromOtherGoroutine(t *testing.T) {
	l := startLoop(t)

	var d *Deferred
	var p *sobek.Promise
	require.NoError(t, l.Do(func(rt *sobek.Runtime) error {
		d, p = NewDeferred(l, rt)
		return nil
	}))

	go func() {
		_ = d.Settle(func(*sobek.Runtime) (sobek.Value, error) {
			return nil, errors.New("await failed")
		})
	}()

	require.Eventually(t, d.Settled, time.Second, time.Millisecond)
	require.NoError(t, l.Do(func(*sobek.Runtime) error {
		require.Equal(t, sobek.PromiseStateRejected, p.State())
		obj, ok := p.Result().(*sobek.Object)
		require.True(t, ok)
		assert.Equal(t, "await failed", obj.Get("message").String())
		return nil
	}))
}

func TestBytes(t *testing.T) {
	rt := sobek.New()

	b, ok := Bytes(rt.ToValue("hi"))
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), b)

	b, ok = Bytes(rt.ToValue(rt.NewArrayBuffer([]byte{1, 2})))
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, b)

	_, ok = Bytes(sobek.Null())
	assert.False(t, ok)
	_, ok = Bytes(rt.ToValue(12))
	assert.False(t, ok)
}

func TestThenable(t *testing.T) {
	rt := sobek.New()
	p, err := rt.RunString(`Promise.resolve(1)`)
	require.NoError(t, err)
	_, ok := Thenable(p)
	assert.True(t, ok)

	_, ok = Thenable(rt.ToValue(map[string]any{"then": 1}))
	assert.False(t, ok)
	_, ok = Thenable(rt.ToValue("x"))
	assert.False(t, ok)
}
