package glazejs

import (
	"errors"

	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/native"
)

// webviewKey keeps the Go webview behind a script webview object.
var webviewKey = sobek.NewSymbol("glaze.webview")

// webviewArg returns the webview behind argument i.
func webviewArg(rt *sobek.Runtime, call sobek.FunctionCall, i int) *Webview {
	if obj, ok := call.Argument(i).(*sobek.Object); ok {
		if v := obj.GetSymbol(webviewKey); v != nil {
			if w, ok := v.Export().(*Webview); ok {
				return w
			}
		}
	}
	panic(rt.NewTypeError("first argument must be a Webview"))
}

func (m *module) webviewClass() sobek.Value {
	rt := m.rt
	ctor := rt.ToValue(func(call sobek.ConstructorCall) *sobek.Object {
		// new Webview(app, options) and new Webview(options) are both accepted.
		args := call.Arguments
		if len(args) > 0 && args[0].SameAs(m.appObj) {
			args = args[1:]
		}
		var opts sobek.Value = sobek.Undefined()
		if len(args) > 0 {
			opts = args[0]
		}
		w, err := m.app.NewWebview(optionsInput(rt, opts))
		if err != nil {
			throw(rt, err)
		}
		m.bindWebview(call.This, w)
		return nil
	}).(*sobek.Object)

	m.method(ctor, "registerScheme", m.registerScheme)
	return ctor
}

// bindWebview defines the properties and methods of a script webview on obj.
func (m *module) bindWebview(obj *sobek.Object, w *Webview) {
	rt := m.rt

	for _, p := range native.Properties() {
		if p == native.PropIcon {
			continue
		}
		m.property(obj, w, p)
	}
	_ = obj.DefineAccessorProperty("parent", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return m.appObj
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = obj.DefineDataProperty("handle", rt.ToValue(uint64(w.Handle())), sobek.FLAG_FALSE, sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = obj.SetSymbol(webviewKey, w)

	// live wraps a method so that it throws once the webview is destroyed.
	live := func(name string, fn func(sobek.FunctionCall) sobek.Value) {
		m.method(obj, name, func(call sobek.FunctionCall) sobek.Value {
			if err := w.check(); err != nil {
				throw(rt, err)
			}
			return fn(call)
		})
	}
	must := func(err error) sobek.Value {
		if err != nil {
			throw(rt, err)
		}
		return sobek.Undefined()
	}

	live("show", func(sobek.FunctionCall) sobek.Value { return must(w.Show()) })
	live("hide", func(sobek.FunctionCall) sobek.Value { return must(w.Hide()) })
	live("close", func(sobek.FunctionCall) sobek.Value { return must(w.Close()) })
	live("focus", func(sobek.FunctionCall) sobek.Value { return must(w.Focus()) })
	live("reload", func(sobek.FunctionCall) sobek.Value { return must(w.Reload()) })
	live("back", func(sobek.FunctionCall) sobek.Value { return must(w.Back()) })
	live("forward", func(sobek.FunctionCall) sobek.Value { return must(w.Forward()) })
	live("startDrag", func(sobek.FunctionCall) sobek.Value { return must(w.StartDrag()) })
	live("startResize", func(call sobek.FunctionCall) sobek.Value {
		return must(w.StartResize(edgeInput(rt, call.Argument(0))))
	})
	live("setIcon", func(call sobek.FunctionCall) sobek.Value {
		return must(w.SetIcon(iconInput(rt, call.Argument(0))))
	})

	live("navigate", func(call sobek.FunctionCall) sobek.Value {
		return must(w.Navigate(stringArg(rt, call, 0, "url")))
	})
	live("setFile", func(call sobek.FunctionCall) sobek.Value {
		return must(w.SetFile(stringArg(rt, call, 0, "path")))
	})
	live("loadHtml", func(call sobek.FunctionCall) sobek.Value {
		return must(w.LoadHTML(stringArg(rt, call, 0, "html")))
	})

	live("execute", func(call sobek.FunctionCall) sobek.Value {
		code := stringArg(rt, call, 0, "code")
		return must(w.Execute(code, scriptArgs(rt, call.Arguments[1:])...))
	})
	live("evaluate", func(call sobek.FunctionCall) sobek.Value {
		code := stringArg(rt, call, 0, "code")
		p, err := w.evaluatePromise(rt, code, scriptArgs(rt, call.Arguments[1:]))
		if err != nil {
			throw(rt, err)
		}
		return rt.ToValue(p)
	})

	live("expose", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "name")
		return must(w.Expose(name, funcArg(rt, call, 1, "handler")))
	})
	live("clearExposed", func(call sobek.FunctionCall) sobek.Value {
		w.ClearExposed(optionalString(rt, call, 0, "name"))
		return sobek.Undefined()
	})

	live("inject", func(call sobek.FunctionCall) sobek.Value {
		return must(w.Inject(scriptInput(rt, call.Argument(0))))
	})
	live("clearScripts", func(sobek.FunctionCall) sobek.Value { return must(w.ClearScripts()) })
	live("embed", func(call sobek.FunctionCall) sobek.Value {
		files := filesInput(rt, call.Argument(0))
		return must(w.Embed(files, policyArg(rt, call, 1)))
	})
	live("serve", func(call sobek.FunctionCall) sobek.Value {
		return must(w.Serve(stringArg(rt, call, 0, "file")))
	})
	live("clearEmbedded", func(call sobek.FunctionCall) sobek.Value {
		return must(w.ClearEmbedded(optionalString(rt, call, 0, "file")))
	})

	live("handleScheme", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "scheme name")
		fn := funcArg(rt, call, 1, "handler")
		return must(w.HandleScheme(name, fn, policyArg(rt, call, 2)))
	})
	live("removeScheme", func(call sobek.FunctionCall) sobek.Value {
		w.RemoveScheme(stringArg(rt, call, 0, "scheme name"))
		return sobek.Undefined()
	})

	live("on", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "event")
		return must(w.On(name, funcArg(rt, call, 1, "callback")))
	})
	live("once", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "event")
		return must(w.Once(name, funcArg(rt, call, 1, "callback")))
	})
	live("off", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "event")
		return rt.ToValue(w.Off(name, call.Argument(1)))
	})
	live("onMessage", func(call sobek.FunctionCall) sobek.Value {
		fn := call.Argument(0)
		if !absent(fn) {
			fn = funcArg(rt, call, 0, "callback")
		}
		return must(w.OnMessage(fn))
	})

	m.method(obj, "destroy", func(sobek.FunctionCall) sobek.Value {
		w.Destroy()
		return sobek.Undefined()
	})
}

// property defines the accessor for p. Reads of properties the backend lacks
// yield undefined; writes throw.
func (m *module) property(obj *sobek.Object, w *Webview, p native.Property) {
	rt := m.rt
	getter := rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		v, err := w.Get(p)
		if errors.Is(err, native.ErrUnsupported) {
			return sobek.Undefined()
		}
		if err != nil {
			throw(rt, err)
		}
		return propertyValue(rt, p, v)
	})

	var setter sobek.Value
	switch p {
	case native.PropFocused, native.PropPageTitle, native.PropFavicon:
	case native.PropURL:
		setter = rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			if err := w.Navigate(call.Argument(0).String()); err != nil {
				throw(rt, err)
			}
			return sobek.Undefined()
		})
	default:
		setter = rt.ToValue(func(call sobek.FunctionCall) sobek.Value {
			if err := w.Set(p, propertyInput(rt, p, call.Argument(0))); err != nil {
				throw(rt, err)
			}
			return sobek.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(p.String(), getter, setter, sobek.FLAG_FALSE, sobek.FLAG_TRUE)
}
