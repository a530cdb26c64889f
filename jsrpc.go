package glazejs

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/jsonv"
	"github.com/crgimenes/glazejs/internal/rpc"
)

// rpcClass is glaze.RPC: the scheme helpers of typed functions.
func (m *module) rpcClass() *sobek.Object {
	rt := m.rt
	obj := rt.NewObject()
	_ = obj.Set("scheme", RPCScheme)
	m.method(obj, "registerScheme", func(sobek.FunctionCall) sobek.Value {
		if err := m.app.RegisterScheme(RPCScheme); err != nil {
			throw(rt, err)
		}
		return sobek.Undefined()
	})
	m.method(obj, "isSchemeRegistered", func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(slices.Contains(m.app.Schemes(), RPCScheme))
	})
	return obj
}

// createRPC implements glaze.createRPC(webview). Every call for the same
// webview shares its definitions.
func (m *module) createRPC(call sobek.FunctionCall) sobek.Value {
	rt := m.rt
	webview := call.Argument(0)
	w := webviewArg(rt, call, 0)
	if err := w.check(); err != nil {
		throw(rt, err)
	}
	r := w.RPC()

	obj := rt.NewObject()
	_ = obj.Set("webview", webview)
	m.method(obj, "define", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "function name")
		s := schemaInput(rt, call.Argument(1))
		fn := funcArg(rt, call, 2, "handler")
		if name == "" {
			panic(rt.NewTypeError(ErrRPCName.Error()))
		}
		if err := r.Define(name, s, fn); err != nil {
			throw(rt, err)
		}
		return obj
	})
	m.method(obj, "undefine", func(call sobek.FunctionCall) sobek.Value {
		r.Undefine(stringArg(rt, call, 0, "function name"))
		return obj
	})
	m.method(obj, "getDefinedFunctions", func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(r.Functions())
	})
	m.method(obj, "generateTypes", func(call sobek.FunctionCall) sobek.Value {
		var ns string
		if o, ok := call.Argument(0).(*sobek.Object); ok {
			if v := o.Get("namespace"); !absent(v) {
				ns = v.String()
			}
		}
		return rt.ToValue(r.Declarations(ns))
	})
	return obj
}

// schemaInput reads {params, returns}. Types are kind names or the objects
// built by glaze.Types.
func schemaInput(rt *sobek.Runtime, v sobek.Value) rpc.Schema {
	var s rpc.Schema
	if absent(v) {
		return s
	}
	raw, err := jsonv.Stringify(rt, v)
	if err != nil {
		throw(rt, err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		panic(rt.NewTypeError(fmt.Sprintf("invalid schema: %v", err)))
	}
	return s
}

// typesObject is glaze.Types, the builders of schema types.
func (m *module) typesObject() *sobek.Object {
	rt := m.rt
	obj := rt.NewObject()

	kind := func(k rpc.Kind) *sobek.Object {
		o := rt.NewObject()
		_ = o.Set("kind", k.String())
		return o
	}
	// clone copies a type so that builders never mutate shared ones.
	clone := func(v sobek.Value) *sobek.Object {
		if s, ok := v.Export().(string); ok {
			var k rpc.Kind
			if err := k.UnmarshalText([]byte(s)); err != nil {
				panic(rt.NewTypeError(err.Error()))
			}
			return kind(k)
		}
		src := objectArg(rt, v, "type")
		o := rt.NewObject()
		for _, key := range src.Keys() {
			_ = o.Set(key, src.Get(key))
		}
		return o
	}

	for _, k := range []rpc.Kind{
		rpc.KindString, rpc.KindNumber, rpc.KindBoolean,
		rpc.KindBuffer, rpc.KindUint8, rpc.KindAny, rpc.KindVoid,
	} {
		_ = obj.Set(k.String(), kind(k))
	}
	m.method(obj, "array", func(call sobek.FunctionCall) sobek.Value {
		o := kind(rpc.KindArray)
		_ = o.Set("elem", clone(call.Argument(0)))
		return o
	})
	m.method(obj, "object", func(call sobek.FunctionCall) sobek.Value {
		props := objectArg(rt, call.Argument(0), "properties")
		var fields []any
		for _, key := range props.Keys() {
			f := clone(props.Get(key))
			_ = f.Set("name", key)
			fields = append(fields, f)
		}
		o := kind(rpc.KindObject)
		_ = o.Set("fields", rt.NewArray(fields...))
		return o
	})
	m.method(obj, "optional", func(call sobek.FunctionCall) sobek.Value {
		o := clone(call.Argument(0))
		_ = o.Set("optional", true)
		return o
	})
	m.method(obj, "param", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "parameter name")
		o := clone(call.Argument(1))
		_ = o.Set("name", name)
		return o
	})
	m.method(obj, "rest", func(call sobek.FunctionCall) sobek.Value {
		name := stringArg(rt, call, 0, "parameter name")
		o := clone(call.Argument(1))
		_ = o.Set("name", name)
		_ = o.Set("rest", true)
		return o
	})
	return obj
}
