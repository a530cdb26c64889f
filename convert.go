package glazejs

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"slices"

	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/events"
	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/native"
)

// errHandleUnavailable is the message scripts see for a destroyed webview.
var errHandleUnavailable = errors.New("native webview handle unavailable")

// throw raises err in the runtime as the exception class scripts expect.
// It must be called on the loop goroutine and does not return.
func throw(rt *sobek.Runtime, err error) {
	switch {
	case errors.Is(err, native.ErrDestroyed):
		panic(host.ErrorValue(rt, errHandleUnavailable))
	case errors.Is(err, native.ErrTooManyArgs):
		panic(host.NewRangeError(rt, err.Error()))
	case errors.Is(err, host.ErrNotCallable),
		errors.Is(err, events.ErrUnsupportedEvent),
		errors.Is(err, jsonv.ErrNotSerializable),
		errors.Is(err, native.ErrPlaceholders),
		errors.Is(err, ErrSchemeName),
		errors.Is(err, ErrResizeEdge):
		panic(rt.NewTypeError(err.Error()))
	default:
		panic(host.ErrorValue(rt, err))
	}
}

func absent(v sobek.Value) bool {
	return v == nil || sobek.IsUndefined(v) || sobek.IsNull(v)
}

// stringArg returns argument i, which must be a string.
func stringArg(rt *sobek.Runtime, call sobek.FunctionCall, i int, what string) string {
	v := call.Argument(i)
	if _, ok := v.Export().(string); !ok {
		panic(rt.NewTypeError(fmt.Sprintf("%s must be a string", what)))
	}
	return v.String()
}

// optionalString returns argument i, or "" when it is absent.
func optionalString(rt *sobek.Runtime, call sobek.FunctionCall, i int, what string) string {
	if absent(call.Argument(i)) {
		return ""
	}
	return stringArg(rt, call, i, what)
}

// funcArg returns argument i, which must be callable.
func funcArg(rt *sobek.Runtime, call sobek.FunctionCall, i int, what string) sobek.Value {
	v := call.Argument(i)
	if _, ok := sobek.AssertFunction(v); !ok {
		panic(rt.NewTypeError(fmt.Sprintf("%s must be a function", what)))
	}
	return v
}

func policyArg(rt *sobek.Runtime, call sobek.FunctionCall, i int) native.LaunchPolicy {
	s := optionalString(rt, call, i, "policy")
	p, ok := native.ParseLaunchPolicy(s)
	if !ok {
		panic(rt.NewTypeError(fmt.Sprintf("policy must be \"sync\" or \"async\", got %q", s)))
	}
	return p
}

// scriptArgs serializes the trailing arguments of execute and evaluate.
func scriptArgs(rt *sobek.Runtime, values []sobek.Value) []json.RawMessage {
	if len(values) > native.MaxScriptArgs {
		panic(host.NewRangeError(rt, native.ErrTooManyArgs.Error()))
	}
	raw, err := jsonv.Args(rt, values)
	if err != nil {
		throw(rt, err)
	}
	return raw
}

// propertyValue converts a property read from the toolkit.
func propertyValue(rt *sobek.Runtime, p native.Property, v any) sobek.Value {
	switch x := v.(type) {
	case native.Size:
		obj := rt.NewObject()
		_ = obj.Set("width", x.Width)
		_ = obj.Set("height", x.Height)
		return obj
	case native.Point:
		obj := rt.NewObject()
		_ = obj.Set("x", x.X)
		_ = obj.Set("y", x.Y)
		return obj
	case native.Color:
		return rt.NewArray(x.R, x.G, x.B, x.A)
	case []byte:
		if len(x) == 0 {
			return sobek.Null()
		}
		return rt.ToValue(rt.NewArrayBuffer(slices.Clone(x)))
	case string:
		if p == native.PropPageTitle && x == "" {
			return sobek.Null()
		}
	}
	return rt.ToValue(v)
}

// propertyInput converts a script value for Set.
func propertyInput(rt *sobek.Runtime, p native.Property, v sobek.Value) any {
	switch p {
	case native.PropTitle:
		return v.String()
	case native.PropSize, native.PropMaxSize, native.PropMinSize:
		obj := objectArg(rt, v, p.String())
		return native.Size{
			Width:  int(intProp(obj, "width")),
			Height: int(intProp(obj, "height")),
		}
	case native.PropPosition:
		obj := objectArg(rt, v, p.String())
		return native.Point{X: int(intProp(obj, "x")), Y: int(intProp(obj, "y"))}
	case native.PropZoom:
		return v.ToFloat()
	case native.PropBackgroundColor:
		return colorInput(rt, v)
	case native.PropIcon:
		return iconInput(rt, v)
	default:
		return v.ToBoolean()
	}
}

func objectArg(rt *sobek.Runtime, v sobek.Value, what string) *sobek.Object {
	if absent(v) {
		panic(rt.NewTypeError(fmt.Sprintf("%s must be an object", what)))
	}
	return v.ToObject(rt)
}

// intProp reads a numeric property; missing properties read as zero.
func intProp(obj *sobek.Object, k string) int64 {
	v := obj.Get(k)
	if v == nil {
		return 0
	}
	return v.ToInteger()
}

func colorInput(rt *sobek.Runtime, v sobek.Value) native.Color {
	obj := objectArg(rt, v, "backgroundColor")
	if intProp(obj, "length") != 4 {
		panic(rt.NewTypeError("backgroundColor must be [r, g, b, a]"))
	}
	var c [4]uint8
	for i := range c {
		n := intProp(obj, fmt.Sprint(i))
		if n < 0 || n > 255 {
			panic(host.NewRangeError(rt, "backgroundColor components must be between 0 and 255"))
		}
		c[i] = uint8(n)
	}
	return native.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// iconInput accepts a file path or image bytes.
func iconInput(rt *sobek.Runtime, v sobek.Value) []byte {
	if s, ok := v.Export().(string); ok {
		b, err := os.ReadFile(s)
		if err != nil {
			throw(rt, fmt.Errorf("read icon: %w", err))
		}
		return b
	}
	b, ok := host.Bytes(v)
	if !ok {
		panic(rt.NewTypeError("icon must be a path or binary data"))
	}
	return slices.Clone(b)
}

// edgeInput accepts an edge name such as "top-left", a bit set
// (1 top, 2 bottom, 4 left, 8 right) or {top, bottom, left, right} flags.
// Nothing selects the bottom-right corner.
func edgeInput(rt *sobek.Runtime, v sobek.Value) native.Edge {
	if absent(v) {
		return native.EdgeDefault
	}
	switch x := v.Export().(type) {
	case string:
		e, ok := native.ParseEdge(x)
		if !ok {
			throw(rt, fmt.Errorf("%w: %q", ErrResizeEdge, x))
		}
		return e
	case int64:
		return native.Edge(x)
	case float64:
		return native.Edge(int(x))
	}
	obj := objectArg(rt, v, "edge")
	var e native.Edge
	for _, f := range []struct {
		name string
		edge native.Edge
	}{{"top", native.EdgeTop}, {"bottom", native.EdgeBottom}, {"left", native.EdgeLeft}, {"right", native.EdgeRight}} {
		if p := obj.Get(f.name); p != nil && p.ToBoolean() {
			e |= f.edge
		}
	}
	return e
}

// scriptInput reads {code, time, frame, permanent}. Scripts run when the
// document is ready unless told otherwise.
func scriptInput(rt *sobek.Runtime, v sobek.Value) native.Script {
	obj := objectArg(rt, v, "script")
	code := obj.Get("code")
	if code == nil || sobek.IsUndefined(code) {
		panic(rt.NewTypeError("script.code must be a string"))
	}
	s := native.Script{Code: code.String(), Time: native.InjectReady}

	switch t := obj.Get("time"); {
	case absent(t), t.String() == "ready":
	case t.String() == "creation":
		s.Time = native.InjectCreation
	default:
		panic(rt.NewTypeError(fmt.Sprintf("script.time must be \"creation\" or \"ready\", got %q", t.String())))
	}
	switch f := obj.Get("frame"); {
	case absent(f), f.String() == "top":
	case f.String() == "all":
		s.Frame = native.FrameAll
	default:
		panic(rt.NewTypeError(fmt.Sprintf("script.frame must be \"top\" or \"all\", got %q", f.String())))
	}
	if p := obj.Get("permanent"); p != nil {
		s.Permanent = p.ToBoolean()
	}
	return s
}

// filesInput reads a name → {content, mime} map.
func filesInput(rt *sobek.Runtime, v sobek.Value) map[string]native.EmbeddedFile {
	obj := objectArg(rt, v, "files")
	files := make(map[string]native.EmbeddedFile)
	for _, name := range obj.Keys() {
		entry := objectArg(rt, obj.Get(name), "files."+name)
		content, ok := host.Bytes(entry.Get("content"))
		if !ok {
			panic(rt.NewTypeError(fmt.Sprintf("files.%s.content must be a string or binary data", name)))
		}
		mt := ""
		if m := entry.Get("mime"); !absent(m) {
			mt = m.String()
		}
		if mt == "" {
			mt = mime.TypeByExtension(path.Ext(name))
		}
		if mt == "" {
			mt = "application/octet-stream"
		}
		files[name] = native.EmbeddedFile{Content: slices.Clone(content), Mime: mt}
	}
	return files
}

// optionsInput reads the webview constructor options.
func optionsInput(rt *sobek.Runtime, v sobek.Value) WebviewOptions {
	var opts WebviewOptions
	if absent(v) {
		return opts
	}
	obj := objectArg(rt, v, "options")
	str := func(k string) string {
		if x := obj.Get(k); !absent(x) {
			return x.String()
		}
		return ""
	}
	num := func(k string) int {
		if x := obj.Get(k); !absent(x) {
			return int(x.ToInteger())
		}
		return 0
	}
	flag := func(k string) bool {
		x := obj.Get(k)
		return x != nil && x.ToBoolean()
	}
	opts.Title = str("title")
	opts.Width = num("width")
	opts.Height = num("height")
	opts.Debug = flag("debug")
	opts.Hidden = flag("hidden")
	opts.Preload = str("preload")
	return opts
}
