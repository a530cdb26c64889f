package scheme

import (
	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/native"
)

// DefaultMime is used when a response does not name a content type.
const DefaultMime = "text/html"

// JSHandler serves requests with a host callback. The callback receives
// {url, method, content, headers} and returns a response object
// {data, mime?, status?, headers?} or a promise of one.
type JSHandler struct {
	inv *host.Invoker
}

// NewJSHandler wraps fn. It runs on the loop goroutine.
func NewJSHandler(loop *host.Loop, fn sobek.Value) (*JSHandler, error) {
	inv, err := host.NewInvoker(loop, fn)
	if err != nil {
		return nil, err
	}
	return &JSHandler{inv: inv}, nil
}

// Release drops the callback.
func (h *JSHandler) Release() { h.inv.Release() }

// ServeScheme implements Handler.
func (h *JSHandler) ServeScheme(req *native.SchemeRequest, exec native.SchemeExecutor) {
	err := h.inv.InvokeAsync(func(rt *sobek.Runtime, fn sobek.Callable) error {
		v, err := fn(sobek.Undefined(), requestObject(rt, req))
		if err != nil {
			exec.Reject(errorCode(host.Thrown(rt, err)))
			return nil
		}
		then, ok := host.Thenable(v)
		if !ok {
			respond(v, exec)
			return nil
		}
		onFulfilled := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			respond(call.Argument(0), exec)
			return sobek.Undefined()
		})
		onRejected := rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			exec.Reject(errorCode(call.Argument(0)))
			return sobek.Undefined()
		})
		if _, err := then(v, onFulfilled, onRejected); err != nil {
			exec.Reject(native.SchemeFailed)
		}
		return nil
	})
	if err != nil {
		exec.Reject(native.SchemeFailed)
	}
}

func requestObject(rt *sobek.Runtime, req *native.SchemeRequest) *sobek.Object {
	obj := rt.NewObject()
	_ = obj.Set("url", req.URL)
	_ = obj.Set("method", req.Method)
	_ = obj.Set("content", rt.NewArrayBuffer(req.Content))
	headers := rt.NewObject()
	for k, v := range req.Headers {
		_ = headers.Set(k, v)
	}
	_ = obj.Set("headers", headers)
	return obj
}

// respond converts a handler result. A result without usable data fails.
func respond(v sobek.Value, exec native.SchemeExecutor) {
	obj, ok := v.(*sobek.Object)
	if !ok {
		exec.Reject(native.SchemeFailed)
		return
	}
	data, ok := host.Bytes(obj.Get("data"))
	if !ok {
		exec.Reject(native.SchemeFailed)
		return
	}

	resp := native.SchemeResponse{Data: data, Mime: DefaultMime, Status: 200}
	if mime := obj.Get("mime"); mime != nil && !sobek.IsUndefined(mime) && !sobek.IsNull(mime) {
		resp.Mime = mime.String()
	}
	if status := obj.Get("status"); status != nil && !sobek.IsUndefined(status) && !sobek.IsNull(status) {
		resp.Status = int(status.ToInteger())
	}
	if h, ok := obj.Get("headers").(*sobek.Object); ok {
		resp.Headers = make(map[string]string)
		for _, k := range h.Keys() {
			resp.Headers[k] = h.Get(k).String()
		}
	}
	exec.Resolve(resp)
}

// errorCode maps a thrown value to a scheme error. A code name such as
// "denied", thrown directly, selects that code; anything else fails.
func errorCode(v sobek.Value) native.SchemeError {
	if s, ok := v.Export().(string); ok {
		if code, ok := native.ParseSchemeError(s); ok {
			return code
		}
	}
	return native.SchemeFailed
}
