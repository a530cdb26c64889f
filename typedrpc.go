package glazejs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/logging"
	"github.com/crgimenes/glazejs/internal/native"
	"github.com/crgimenes/glazejs/internal/rpc"
)

// RPCScheme carries binary calls. Register it with App.RegisterScheme before
// creating webviews that define binary functions.
const RPCScheme = "glaze-rpc"

type (
	RPCType   = rpc.Type
	RPCSchema = rpc.Schema
)

// BinaryFunc serves a binary call with the raw request body. A []byte result
// is sent back as raw bytes; anything else is encoded as JSON.
type BinaryFunc func(ctx context.Context, data []byte, headers map[string]string) (any, error)

// ErrRPCName is returned when defining a function without a name.
var ErrRPCName = errors.New("glazejs: rpc function name must not be empty")

// binaryHelper adds glaze.callBinary to the page.
const binaryHelper = `(function () {
	if (!window.glaze || window.glaze.callBinary) return;
	window.glaze.callBinary = function (name, data) {
		var body = data instanceof ArrayBuffer ? new Uint8Array(data) : data;
		return fetch("` + RPCScheme + `://call/" + encodeURIComponent(name), {
			method: "POST",
			body: body,
			headers: {"Content-Type": "application/octet-stream"}
		}).then(function (res) {
			var type = res.headers.get("content-type") || "";
			if (!res.ok) {
				return res.json().then(function (e) { throw new Error(e.error); },
					function () { throw new Error("rpc call failed"); });
			}
			if (type.indexOf("application/json") >= 0) return res.json();
			return res.arrayBuffer().then(function (b) { return new Uint8Array(b); });
		});
	};
})();`

// RPC defines typed functions on one webview. Functions without binary
// parameters or results go over the page bridge with their arguments
// checked against the schema; binary functions are served on RPCScheme and
// called from the page with glaze.callBinary.
type RPC struct {
	w   *Webview
	log zerolog.Logger

	mu     sync.Mutex
	defs   []rpc.Definition
	binary *binaryHandler
	helper bool
}

// RPC returns the typed function builder of w.
func (w *Webview) RPC() *RPC {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typed == nil {
		w.typed = &RPC{w: w, log: logging.Component(w.log, "typed-rpc")}
	}
	return w.typed
}

// Webview returns the webview the functions are defined on.
func (r *RPC) Webview() *Webview { return r.w }

// Define exposes a script function under name. Defining a name again
// replaces the previous definition. It runs on the loop goroutine.
func (r *RPC) Define(name string, s rpc.Schema, fn sobek.Value) error {
	if err := r.prepare(name, s); err != nil {
		return err
	}
	if s.Binary() {
		inv, err := host.NewInvoker(r.w.app.loop, fn)
		if err != nil {
			return err
		}
		return r.defineBinary(name, s, binaryEntry{inv: inv})
	}
	if err := r.w.rpc.Expose(name, fn, rpc.WithCheck(s.Check)); err != nil {
		return err
	}
	return r.defineBridged(name, s)
}

// DefineFunc exposes a Go function under name with a schema derived from its
// signature.
func (r *RPC) DefineFunc(name string, f any) error {
	s, err := rpc.FuncSchema(f)
	if err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	if err := r.prepare(name, s); err != nil {
		return err
	}
	if err := r.w.rpc.ExposeFunc(name, f, rpc.WithCheck(s.Check)); err != nil {
		return err
	}
	return r.defineBridged(name, s)
}

// DefineBinary serves name on RPCScheme with a Go function.
func (r *RPC) DefineBinary(name string, fn BinaryFunc) error {
	if fn == nil {
		return fmt.Errorf("define %s: nil function", name)
	}
	result := rpc.Any()
	s := rpc.Schema{Params: []rpc.Type{rpc.Uint8().Named("data")}, Returns: &result}
	if err := r.prepare(name, s); err != nil {
		return err
	}
	return r.defineBinary(name, s, binaryEntry{fn: fn})
}

// Undefine removes name from the bridge and the binary scheme.
func (r *RPC) Undefine(name string) {
	r.mu.Lock()
	r.defs = slices.DeleteFunc(r.defs, func(d rpc.Definition) bool { return d.Name == name })
	h := r.binary
	r.mu.Unlock()

	if h != nil {
		h.remove(name)
	}
	r.w.ClearExposed(name)
}

// Functions lists the defined names in definition order.
func (r *RPC) Functions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.defs))
	for i, d := range r.defs {
		names[i] = d.Name
	}
	return names
}

// Declarations renders TypeScript declarations of the defined functions for
// the page global ns, "glaze" when empty.
func (r *RPC) Declarations(ns string) string {
	r.mu.Lock()
	defs := slices.Clone(r.defs)
	r.mu.Unlock()
	return rpc.Declarations(ns, defs)
}

func (r *RPC) prepare(name string, s rpc.Schema) error {
	if name == "" {
		return ErrRPCName
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	if err := r.w.check(); err != nil {
		return err
	}
	if slices.Contains(r.Functions(), name) {
		r.Undefine(name)
	}
	return nil
}

func (r *RPC) defineBridged(name string, s rpc.Schema) error {
	if err := r.w.bind(name); err != nil {
		return err
	}
	r.record(name, s)
	return nil
}

func (r *RPC) defineBinary(name string, s rpc.Schema, e binaryEntry) error {
	h, err := r.binaryScheme()
	if err != nil {
		e.release()
		return err
	}
	h.add(name, e)
	r.record(name, s)
	return nil
}

func (r *RPC) record(name string, s rpc.Schema) {
	r.mu.Lock()
	r.defs = append(r.defs, rpc.Definition{Name: name, Schema: s})
	r.mu.Unlock()
}

// binaryScheme installs the RPCScheme handler and the page helper on first
// use.
func (r *RPC) binaryScheme() (*binaryHandler, error) {
	r.mu.Lock()
	h := r.binary
	r.mu.Unlock()
	if h != nil && !h.released() {
		return h, nil
	}

	if !slices.Contains(r.w.app.Schemes(), RPCScheme) {
		r.log.Warn().Str("scheme", RPCScheme).
			Msg("binary rpc scheme not registered; register it before creating webviews")
	}
	h = newBinaryHandler(r.log)
	if err := r.w.HandleSchemeWith(RPCScheme, h, native.LaunchAsync); err != nil {
		return nil, fmt.Errorf("binary rpc: %w", err)
	}

	r.mu.Lock()
	r.binary = h
	inject := !r.helper
	r.helper = true
	r.mu.Unlock()

	if inject {
		if err := r.w.Inject(native.Script{Code: binaryHelper, Time: native.InjectCreation, Permanent: true}); err != nil {
			return nil, err
		}
		// The current page predates the injection.
		if err := r.w.Execute(binaryHelper); err != nil {
			return nil, err
		}
	}
	return h, nil
}

type binaryEntry struct {
	inv *host.Invoker
	fn  BinaryFunc
}

func (e binaryEntry) release() {
	if e.inv != nil {
		e.inv.Release()
	}
}

// binaryHandler serves RPCScheme. Requests name the function in the first
// path segment, "glaze-rpc://call/<name>", or in the host.
type binaryHandler struct {
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]binaryEntry
	done    bool
}

func newBinaryHandler(log zerolog.Logger) *binaryHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &binaryHandler{
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]binaryEntry),
	}
}

func (h *binaryHandler) add(name string, e binaryEntry) {
	h.mu.Lock()
	old, had := h.entries[name]
	if h.done {
		h.mu.Unlock()
		e.release()
		return
	}
	h.entries[name] = e
	h.mu.Unlock()
	if had {
		old.release()
	}
}

func (h *binaryHandler) remove(name string) {
	h.mu.Lock()
	e, ok := h.entries[name]
	delete(h.entries, name)
	h.mu.Unlock()
	if ok {
		e.release()
	}
}

func (h *binaryHandler) lookup(name string) (binaryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[name]
	return e, ok
}

func (h *binaryHandler) released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

// Release implements scheme.Handler.
func (h *binaryHandler) Release() {
	h.mu.Lock()
	all := h.entries
	h.entries = make(map[string]binaryEntry)
	h.done = true
	h.mu.Unlock()

	h.cancel()
	for _, e := range all {
		e.release()
	}
}

// ServeScheme implements scheme.Handler.
func (h *binaryHandler) ServeScheme(req *native.SchemeRequest, exec native.SchemeExecutor) {
	if req.Method == http.MethodOptions {
		exec.Resolve(native.SchemeResponse{
			Data:    []byte{},
			Mime:    "text/plain",
			Status:  http.StatusNoContent,
			Headers: corsHeaders(),
		})
		return
	}

	name := rpcFunctionName(req.URL)
	e, ok := h.lookup(name)
	if !ok {
		failBinary(exec, http.StatusNotFound, jsonv.Quote(fmt.Sprintf("function '%s' not found", name)))
		return
	}

	if e.fn != nil {
		res, err := e.fn(h.ctx, req.Content, req.Headers)
		if err != nil {
			failBinary(exec, http.StatusInternalServerError, jsonv.Quote(err.Error()))
			return
		}
		if b, ok := res.([]byte); ok {
			exec.Resolve(bytesResponse(b))
			return
		}
		data, err := json.Marshal(res)
		if err != nil {
			failBinary(exec, http.StatusInternalServerError, jsonv.Quote(err.Error()))
			return
		}
		exec.Resolve(jsonResponse(data))
		return
	}

	err := e.inv.InvokeAsync(func(rt *sobek.Runtime, fn sobek.Callable) error {
		headers := rt.NewObject()
		for k, v := range req.Headers {
			_ = headers.Set(k, v)
		}
		v, err := fn(sobek.Undefined(), rt.NewArrayBuffer(req.Content), headers)
		if err != nil {
			failBinary(exec, http.StatusInternalServerError, rpc.Reason(rt, host.Thrown(rt, err)))
			return nil
		}
		then, ok := host.Thenable(v)
		if !ok {
			respondBinary(rt, v, exec)
			return nil
		}
		onFulfilled := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			respondBinary(rt, call.Argument(0), exec)
			return sobek.Undefined()
		})
		onRejected := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			failBinary(exec, http.StatusInternalServerError, rpc.Reason(rt, call.Argument(0)))
			return sobek.Undefined()
		})
		if _, err := then(v, onFulfilled, onRejected); err != nil {
			failBinary(exec, http.StatusInternalServerError, rpc.Reason(rt, host.Thrown(rt, err)))
		}
		return nil
	})
	if err != nil {
		h.log.Debug().Err(err).Str("function", name).Msg("binary rpc dispatch failed")
		failBinary(exec, http.StatusInternalServerError, jsonv.Quote(err.Error()))
	}
}

// respondBinary sends binary values as bytes and everything else as JSON.
func respondBinary(rt *sobek.Runtime, v sobek.Value, exec native.SchemeExecutor) {
	if _, isString := v.Export().(string); !isString {
		if b, ok := host.Bytes(v); ok {
			exec.Resolve(bytesResponse(slices.Clone(b)))
			return
		}
	}
	data, err := jsonv.Stringify(rt, v)
	if err != nil {
		failBinary(exec, http.StatusInternalServerError, jsonv.Quote(err.Error()))
		return
	}
	exec.Resolve(jsonResponse(data))
}

// failBinary answers with {"error": reason}; reason is JSON text.
func failBinary(exec native.SchemeExecutor, status int, reason string) {
	exec.Resolve(native.SchemeResponse{
		Data:    []byte(`{"error":` + reason + `}`),
		Mime:    "application/json",
		Status:  status,
		Headers: corsHeaders(),
	})
}

func bytesResponse(b []byte) native.SchemeResponse {
	if b == nil {
		b = []byte{}
	}
	return native.SchemeResponse{Data: b, Mime: "application/octet-stream", Status: http.StatusOK, Headers: corsHeaders()}
}

func jsonResponse(data []byte) native.SchemeResponse {
	return native.SchemeResponse{Data: data, Mime: "application/json", Status: http.StatusOK, Headers: corsHeaders()}
}

// corsHeaders let pages served from other schemes call RPCScheme.
func corsHeaders() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET, POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
}

// rpcFunctionName reads the function from "scheme://call/<name>" or
// "scheme://<name>".
func rpcFunctionName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		rest := raw[strings.IndexByte(raw, ':')+1:]
		rest = strings.TrimPrefix(rest, "//")
		name, _, _ := strings.Cut(rest, "/")
		name, _, _ = strings.Cut(name, "?")
		return name
	}
	if u.Host == "call" {
		seg, _, _ := strings.Cut(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
		if name, err := url.PathUnescape(seg); err == nil {
			return name
		}
		return seg
	}
	return u.Host
}
