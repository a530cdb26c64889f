package glazejs

import (
	"fmt"
	"strings"

	"github.com/grafana/sobek"
	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/host"
	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/logging"
)

// module holds the script-facing objects of one application.
type module struct {
	rt  *sobek.Runtime
	app *App
	log zerolog.Logger

	glaze  *sobek.Object
	appObj *sobek.Object
}

// Install defines the glaze module object and console in rt, bound to app.
// Call it on the loop goroutine, or before the loop runs.
func Install(rt *sobek.Runtime, app *App) (*sobek.Object, error) {
	m := &module{
		rt:  rt,
		app: app,
		log: logging.Component(app.log, "script"),
	}
	m.glaze = rt.NewObject()
	m.appObj = m.newApplication()

	sets := []struct {
		name  string
		value any
	}{
		{"version", Version},
		{"Application", m.applicationClass()},
		{"Webview", m.webviewClass()},
		{"Stash", m.stashClass()},
		{"RPC", m.rpcClass()},
		{"Types", m.typesObject()},
		{"createRPC", m.createRPC},
		{"registerScheme", m.registerScheme},
		{"onError", m.onError},
	}
	for _, s := range sets {
		if err := m.glaze.Set(s.name, s.value); err != nil {
			return nil, fmt.Errorf("install %s: %w", s.name, err)
		}
	}
	if err := rt.Set("glaze", m.glaze); err != nil {
		return nil, fmt.Errorf("install glaze: %w", err)
	}
	if err := rt.Set("console", m.console()); err != nil {
		return nil, fmt.Errorf("install console: %w", err)
	}
	return m.glaze, nil
}

func (m *module) method(obj *sobek.Object, name string, fn func(sobek.FunctionCall) sobek.Value) {
	_ = obj.Set(name, fn)
}

func (m *module) registerScheme(call sobek.FunctionCall) sobek.Value {
	if err := m.app.RegisterScheme(stringArg(m.rt, call, 0, "scheme name")); err != nil {
		throw(m.rt, err)
	}
	return sobek.Undefined()
}

// onError installs the handler for uncaught callback errors; a non-function
// removes it.
func (m *module) onError(call sobek.FunctionCall) sobek.Value {
	fn, ok := sobek.AssertFunction(call.Argument(0))
	if !ok {
		m.app.loop.OnError(nil)
		return sobek.Undefined()
	}
	m.app.loop.OnError(func(rt *sobek.Runtime, err error) {
		if _, ferr := fn(sobek.Undefined(), host.Thrown(rt, err)); ferr != nil {
			m.log.Error().Err(ferr).Msg("onError handler threw")
		}
	})
	return sobek.Undefined()
}

// Application

func (m *module) applicationClass() sobek.Value {
	ctor := m.rt.ToValue(func(call sobek.ConstructorCall) *sobek.Object {
		return m.appObj
	}).(*sobek.Object)
	active := func(sobek.FunctionCall) sobek.Value { return m.appObj }
	m.method(ctor, "init", active)
	m.method(ctor, "active", active)
	return ctor
}

// newApplication builds the one application object scripts share.
func (m *module) newApplication() *sobek.Object {
	rt, app := m.rt, m.app
	obj := rt.NewObject()

	m.method(obj, "quit", func(sobek.FunctionCall) sobek.Value {
		app.Quit()
		return sobek.Undefined()
	})
	// The toolkit loop is already driven by App.Run.
	m.method(obj, "run", func(sobek.FunctionCall) sobek.Value { return sobek.Undefined() })
	m.method(obj, "isThreadSafe", func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(app.IsThreadSafe())
	})
	m.method(obj, "nativeHandle", func(sobek.FunctionCall) sobek.Value {
		p := app.NativeHandle()
		if p == nil {
			return sobek.Null()
		}
		return rt.ToValue(uint64(uintptr(p)))
	})
	m.method(obj, "post", func(call sobek.FunctionCall) sobek.Value {
		if err := app.Post(funcArg(rt, call, 0, "callback")); err != nil {
			throw(rt, err)
		}
		return sobek.Undefined()
	})
	dispatch := func(call sobek.FunctionCall) sobek.Value {
		p, err := app.Dispatch(rt, funcArg(rt, call, 0, "callback"))
		if err != nil {
			throw(rt, err)
		}
		return rt.ToValue(p)
	}
	m.method(obj, "dispatch", dispatch)
	m.method(obj, "make", dispatch)
	m.method(obj, "poolSubmit", func(call sobek.FunctionCall) sobek.Value {
		p, err := app.PoolSubmit(rt, funcArg(rt, call, 0, "callback"))
		if err != nil {
			throw(rt, err)
		}
		return rt.ToValue(p)
	})
	m.method(obj, "poolEmplace", func(call sobek.FunctionCall) sobek.Value {
		if err := app.PoolEmplace(funcArg(rt, call, 0, "callback")); err != nil {
			throw(rt, err)
		}
		return sobek.Undefined()
	})
	return obj
}

// console routes script logging to the application logger.
func (m *module) console() *sobek.Object {
	obj := m.rt.NewObject()
	levels := map[string]zerolog.Level{
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"trace": zerolog.TraceLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	}
	for name, level := range levels {
		m.method(obj, name, func(call sobek.FunctionCall) sobek.Value {
			m.log.WithLevel(level).Msg(m.format(call.Arguments))
			return sobek.Undefined()
		})
	}
	return obj
}

func (m *module) format(args []sobek.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if o, ok := a.(*sobek.Object); ok && o.ClassName() != "Error" {
			if _, fn := sobek.AssertFunction(a); !fn {
				if raw, err := jsonv.Stringify(m.rt, a); err == nil {
					parts[i] = string(raw)
					continue
				}
			}
		}
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
