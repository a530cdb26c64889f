package glazejs

import (
	"slices"

	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/host"
)

// stashClass builds glaze.Stash. Stash.from copies its input and
// Stash.view aliases it; both return null for data that is not a string,
// ArrayBuffer or typed array.
func (m *module) stashClass() sobek.Value {
	rt := m.rt
	ctor := rt.ToValue(func(call sobek.ConstructorCall) *sobek.Object {
		b, ok := host.Bytes(call.Argument(0))
		if !ok && !absent(call.Argument(0)) {
			panic(rt.NewTypeError("stash data must be a string or binary data"))
		}
		m.bindStash(call.This, StashFrom(b))
		return nil
	}).(*sobek.Object)
	proto := ctor.Get("prototype").ToObject(rt)

	wrap := func(s *Stash) sobek.Value {
		obj := rt.NewObject()
		_ = obj.SetPrototype(proto)
		m.bindStash(obj, s)
		return obj
	}
	m.method(ctor, "from", func(call sobek.FunctionCall) sobek.Value {
		b, ok := host.Bytes(call.Argument(0))
		if !ok {
			return sobek.Null()
		}
		return wrap(StashFrom(b))
	})
	m.method(ctor, "view", func(call sobek.FunctionCall) sobek.Value {
		b, ok := host.Bytes(call.Argument(0))
		if !ok {
			return sobek.Null()
		}
		return wrap(StashView(b))
	})
	return ctor
}

func (m *module) bindStash(obj *sobek.Object, s *Stash) {
	rt := m.rt
	_ = obj.SetSymbol(host.ByteSourceKey, s)
	_ = obj.DefineAccessorProperty("size", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(s.Len())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("owned", rt.ToValue(func(sobek.FunctionCall) sobek.Value {
		return rt.ToValue(s.Owned())
	}), nil, sobek.FLAG_FALSE, sobek.FLAG_TRUE)

	data := func(sobek.FunctionCall) sobek.Value {
		if s.Released() {
			return sobek.Null()
		}
		return rt.ToValue(rt.NewArrayBuffer(slices.Clone(s.Bytes())))
	}
	m.method(obj, "data", data)
	m.method(obj, "getData", data)
	m.method(obj, "release", func(sobek.FunctionCall) sobek.Value {
		s.Release()
		return sobek.Undefined()
	})
}
