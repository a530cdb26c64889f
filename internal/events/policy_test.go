package events

import (
	"testing"
	"time"

	"github.com/grafana/sobek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crgimenes/glazejs/internal/native"
)

func navigate(url string) native.Navigate {
	return native.Navigate{Navigation: native.Navigation{URL: url, UserInitiated: true}}
}

func TestPolicyNoHandlersAllows(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.reg.Evaluate(navigate("https://a.test/")))
}

func TestPolicyDenyIsSticky(t *testing.T) {
	f := newFixture(t)
	f.eval(t, `globalThis.ran = []`)
	f.on(t, "navigate", `(function() { ran.push(1); return true })`, false)
	f.on(t, "navigate", `(function() { ran.push(2); return false })`, false)
	f.on(t, "navigate", `(function() { ran.push(3); return true })`, false)

	assert.False(t, f.reg.Evaluate(navigate("https://a.test/")))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, f.eval(t, `ran`), "every handler runs after a veto")
}

func TestPolicyVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		handler string
		allow   bool
	}{
		{"true allows", `(function() { return true })`, true},
		{"undefined allows", `(function() {})`, true},
		{"other string allows", `(function() { return "allow" })`, true},
		{"number allows", `(function() { return 0 })`, true},
		{"false denies", `(function() { return false })`, false},
		{"block denies", `(function() { return "block" })`, false},
		{"throw denies", `(function() { throw new Error("nope") })`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.on(t, "close", tt.handler, false)
			assert.Equal(t, tt.allow, f.reg.Evaluate(native.Close{}))
		})
	}
}

func TestPolicyThrowIsReported(t *testing.T) {
	f := newFixture(t)
	reported := make(chan string, 1)
	f.loop.OnError(func(_ *sobek.Runtime, err error) { reported <- err.Error() })
	f.on(t, "close", `(function() { throw new Error("veto by exception") })`, false)

	assert.False(t, f.reg.Evaluate(native.Close{}))
	select {
	case msg := <-reported:
		assert.Contains(t, msg, "veto by exception")
	case <-time.After(time.Second):
		t.Fatal("throwing policy handler was not reported")
	}
}

func TestPolicyReceivesNavigation(t *testing.T) {
	f := newFixture(t)
	f.on(t, "navigate", `(function(nav) {
		return nav.url.startsWith("https://blocked.test") && nav.userInitiated ? "block" : undefined
	})`, false)

	assert.False(t, f.reg.Evaluate(navigate("https://blocked.test/x")))
	assert.True(t, f.reg.Evaluate(navigate("https://fine.test/")))
}

func TestPolicyOncePruned(t *testing.T) {
	f := newFixture(t)
	f.on(t, "close", `(function() { return false })`, true)

	assert.False(t, f.reg.Evaluate(native.Close{}))
	assert.True(t, f.reg.Evaluate(native.Close{}), "one-shot veto applies once")
	assert.False(t, f.reg.Has("close"))
}

func TestPolicyClosedLoopCastsNoVote(t *testing.T) {
	f := newFixture(t)
	f.on(t, "close", `(function() { return false })`, false)

	f.loop.Stop()
	<-f.loop.Done()
	assert.True(t, f.reg.Evaluate(native.Close{}))
}

func TestDenies(t *testing.T) {
	rt := sobek.New()
	assert.True(t, Denies(rt.ToValue(false)))
	assert.True(t, Denies(rt.ToValue("block")))
	assert.False(t, Denies(rt.ToValue("Block")))
	assert.False(t, Denies(sobek.Undefined()))
	assert.False(t, Denies(nil))
	require.False(t, Denies(rt.ToValue(true)))
}
