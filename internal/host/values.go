package host

import (
	"errors"

	"github.com/grafana/sobek"
)

// ByteSource is implemented by Go values that carry a byte payload when
// wrapped into the runtime.
type ByteSource interface {
	Bytes() []byte
}

// ByteSourceKey is the hidden symbol under which wrapper objects keep their
// ByteSource.
var ByteSourceKey = sobek.NewSymbol("glaze.bytes")

// Bytes extracts a byte payload from a string, ArrayBuffer, typed array or
// ByteSource wrapper.
func Bytes(v sobek.Value) ([]byte, bool) {
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return nil, false
	}
	if o, ok := v.(*sobek.Object); ok {
		if src := o.GetSymbol(ByteSourceKey); src != nil {
			if bs, ok := src.Export().(ByteSource); ok {
				return bs.Bytes(), true
			}
		}
	}
	switch x := v.Export().(type) {
	case string:
		return []byte(x), true
	case sobek.ArrayBuffer:
		return x.Bytes(), true
	case []byte:
		return x, true
	case ByteSource:
		return x.Bytes(), true
	}
	return nil, false
}

// Thenable returns the then function of a promise-like value.
func Thenable(v sobek.Value) (sobek.Callable, bool) {
	o, ok := v.(*sobek.Object)
	if !ok {
		return nil, false
	}
	then := o.Get("then")
	if then == nil {
		return nil, false
	}
	return sobek.AssertFunction(then)
}

// Thrown unwraps the value thrown by a failed call. Errors that did not
// originate from a script throw are turned into Error objects.
func Thrown(rt *sobek.Runtime, err error) sobek.Value {
	var exc *sobek.Exception
	if errors.As(err, &exc) {
		return exc.Value()
	}
	return ErrorValue(rt, err)
}

// ErrorValue builds an Error object whose message is err's text.
func ErrorValue(rt *sobek.Runtime, err error) sobek.Value {
	ctor, ok := sobek.AssertConstructor(rt.Get("Error"))
	if !ok {
		return rt.NewGoError(err)
	}
	obj, cerr := ctor(nil, rt.ToValue(err.Error()))
	if cerr != nil {
		return rt.NewGoError(err)
	}
	return obj
}

// NewRangeError builds a RangeError object.
func NewRangeError(rt *sobek.Runtime, msg string) *sobek.Object {
	ctor, ok := sobek.AssertConstructor(rt.Get("RangeError"))
	if ok {
		if obj, err := ctor(nil, rt.ToValue(msg)); err == nil {
			return obj
		}
	}
	return rt.NewTypeError(msg)
}
