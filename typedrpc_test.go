package glazejs

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crgimenes/glazejs/internal/native"
)

type vec struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func evalContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDefineFuncChecksArguments(t *testing.T) {
	h := newHarness(t)
	w := h.webview()
	r := w.RPC()
	assert.Same(t, r, w.RPC())

	require.NoError(t, r.DefineFunc("scale", func(v vec, k int) vec { return vec{v.X * k, v.Y * k} }))
	ctx := evalContext(t)

	var got vec
	err := w.EvaluateValue(ctx, &got, `glaze.call("scale", {}, {})`, json.RawMessage(`{"x":1,"y":2}`), json.RawMessage(`3`))
	require.NoError(t, err)
	assert.Equal(t, vec{3, 6}, got)

	var msg string
	err = w.EvaluateValue(ctx, &msg, `glaze.call("scale", "v", 3).then(() => "resolved", (e) => String(e))`)
	require.NoError(t, err)
	assert.Contains(t, msg, "argument arg0: want object, got string")

	err = w.EvaluateValue(ctx, &msg, `glaze.call("scale", {}).then(() => "resolved", (e) => String(e))`, json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Contains(t, msg, "missing field y")

	assert.Equal(t, []string{"scale"}, r.Functions())
	assert.Contains(t, r.Declarations(""),
		`call(name: "scale", arg0: { x: number; y: number }, arg1: number): Promise<{ x: number; y: number }>;`)
}

func TestRedefineAndUndefine(t *testing.T) {
	h := newHarness(t)
	w := h.webview()
	r := w.RPC()
	ctx := evalContext(t)

	require.NoError(t, r.DefineFunc("v", func() string { return "old" }))
	require.NoError(t, r.DefineFunc("v", func() string { return "new" }))
	assert.Equal(t, []string{"v"}, r.Functions())

	var got string
	require.NoError(t, w.EvaluateValue(ctx, &got, `glaze.call("v")`))
	assert.Equal(t, "new", got)

	r.Undefine("v")
	assert.Empty(t, r.Functions())
	require.NoError(t, w.EvaluateValue(ctx, &got, `glaze.call("v").catch((e) => e.name)`))
	assert.Equal(t, "TypeError", got)

	assert.ErrorIs(t, r.DefineFunc("", func() {}), ErrRPCName)
	assert.Error(t, r.DefineFunc("bad", 42))
}

func TestDefineBinaryRoundTrip(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.RegisterScheme(RPCScheme))
	w := h.webview()
	r := w.RPC()
	ctx := evalContext(t)

	require.NoError(t, r.DefineBinary("reverse", func(_ context.Context, data []byte, _ map[string]string) (any, error) {
		out := slices.Clone(data)
		slices.Reverse(out)
		return out, nil
	}))
	require.NoError(t, r.DefineBinary("size", func(_ context.Context, data []byte, headers map[string]string) (any, error) {
		return map[string]any{"n": len(data), "type": headers["Content-Type"]}, nil
	}))
	require.NoError(t, r.DefineBinary("boom", func(context.Context, []byte, map[string]string) (any, error) {
		return nil, errors.New("boom")
	}))

	var bytes []int
	err := w.EvaluateValue(ctx, &bytes, `glaze.callBinary("reverse", new Uint8Array([1, 2, 3])).then((a) => Array.from(a))`)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, bytes)

	var size struct {
		N    int    `json:"n"`
		Type string `json:"type"`
	}
	require.NoError(t, w.EvaluateValue(ctx, &size, `glaze.callBinary("size", new ArrayBuffer(5))`))
	assert.Equal(t, 5, size.N)
	assert.Equal(t, "application/octet-stream", size.Type)

	var msg string
	require.NoError(t, w.EvaluateValue(ctx, &msg, `glaze.callBinary("boom", new Uint8Array(0)).then(() => "resolved", (e) => e.message)`))
	assert.Equal(t, "boom", msg)
	require.NoError(t, w.EvaluateValue(ctx, &msg, `glaze.callBinary("nope", new Uint8Array(0)).then(() => "resolved", (e) => e.message)`))
	assert.Equal(t, "function 'nope' not found", msg)

	assert.Equal(t, []string{"reverse", "size", "boom"}, r.Functions())
	decl := r.Declarations("")
	assert.Contains(t, decl, `callBinary(name: "reverse", data: Uint8Array | ArrayBuffer): Promise<any>;`)
	assert.NotContains(t, decl, `call(name: "reverse"`)

	r.Undefine("reverse")
	require.NoError(t, w.EvaluateValue(ctx, &msg, `glaze.callBinary("reverse", new Uint8Array(1)).then(() => "resolved", (e) => e.message)`))
	assert.Equal(t, "function 'reverse' not found", msg)
}

func TestBinaryHelperSurvivesNavigation(t *testing.T) {
	h := newHarness(t)
	w := h.webview()
	r := w.RPC()
	require.NoError(t, r.DefineBinary("len", func(_ context.Context, data []byte, _ map[string]string) (any, error) {
		return len(data), nil
	}))

	require.NoError(t, w.LoadHTML("<title>next</title>"))
	require.Eventually(t, func() bool {
		title, err := w.Get(native.PropPageTitle)
		return err == nil && title == "next"
	}, 3*time.Second, 5*time.Millisecond)

	var n int
	require.NoError(t, w.EvaluateValue(evalContext(t), &n, `glaze.callBinary("len", new Uint8Array(4))`))
	assert.Equal(t, 4, n)
}

// schemeRecorder captures the completion of one scheme request.
type schemeRecorder struct {
	resp     *native.SchemeResponse
	rejected native.SchemeError
}

func (r *schemeRecorder) Resolve(resp native.SchemeResponse) { r.resp = &resp }
func (r *schemeRecorder) Reject(code native.SchemeError)     { r.rejected = code }

func TestBinarySchemeAnswersPreflight(t *testing.T) {
	h := newBinaryHandler(zerolog.Nop())
	defer h.Release()

	rec := &schemeRecorder{}
	h.ServeScheme(&native.SchemeRequest{URL: RPCScheme + "://call/x", Method: "OPTIONS"}, rec)
	require.NotNil(t, rec.resp)
	assert.Equal(t, 204, rec.resp.Status)
	assert.Equal(t, "*", rec.resp.Headers["Access-Control-Allow-Origin"])
	assert.Equal(t, "GET, POST, OPTIONS", rec.resp.Headers["Access-Control-Allow-Methods"])

	rec = &schemeRecorder{}
	h.ServeScheme(&native.SchemeRequest{URL: RPCScheme + "://call/x", Method: "POST"}, rec)
	require.NotNil(t, rec.resp)
	assert.Equal(t, 404, rec.resp.Status)
	assert.Equal(t, "application/json", rec.resp.Mime)
	assert.JSONEq(t, `{"error":"function 'x' not found"}`, string(rec.resp.Data))
	assert.Equal(t, "*", rec.resp.Headers["Access-Control-Allow-Origin"])
}

func TestBinaryHandlerReleaseCancelsContext(t *testing.T) {
	h := newBinaryHandler(zerolog.Nop())
	var seen context.Context
	h.add("ctx", binaryEntry{fn: func(ctx context.Context, _ []byte, _ map[string]string) (any, error) {
		seen = ctx
		return nil, nil
	}})

	rec := &schemeRecorder{}
	h.ServeScheme(&native.SchemeRequest{URL: RPCScheme + "://call/ctx", Method: "POST"}, rec)
	require.NotNil(t, rec.resp)
	assert.Equal(t, "null", string(rec.resp.Data))
	require.NoError(t, seen.Err())

	h.Release()
	assert.Error(t, seen.Err())
	assert.True(t, h.released())

	h.add("late", binaryEntry{fn: func(context.Context, []byte, map[string]string) (any, error) { return nil, nil }})
	_, ok := h.lookup("late")
	assert.False(t, ok)
}

func TestRPCFunctionName(t *testing.T) {
	tests := []struct{ url, want string }{
		{RPCScheme + "://call/getThumb", "getThumb"},
		{RPCScheme + "://call/a%20b?x=1", "a b"},
		{RPCScheme + "://call/name/extra", "name"},
		{RPCScheme + "://legacy/path", "legacy"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rpcFunctionName(tt.url), tt.url)
	}
}

func TestWindowPointerGrabs(t *testing.T) {
	h := newHarness(t)
	w := h.webview()

	require.NoError(t, w.StartDrag())
	require.NoError(t, w.StartResize(0))
	require.NoError(t, w.StartResize(native.EdgeTop|native.EdgeRight))
	assert.ErrorIs(t, w.StartResize(native.EdgeLeft|native.EdgeRight), ErrResizeEdge)
	assert.ErrorIs(t, w.StartResize(32), ErrResizeEdge)

	w.Destroy()
	assert.ErrorIs(t, w.StartDrag(), ErrDestroyed)
	assert.ErrorIs(t, w.StartResize(native.EdgeTop), ErrDestroyed)
}
