// Package jsonv converts between runtime values and JSON text using the
// runtime's own JSON facility, plus a generic Go document model.
package jsonv

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/grafana/sobek"
)

// ErrNotSerializable is returned for values JSON cannot represent.
var ErrNotSerializable = errors.New("jsonv: value is not JSON serializable")

// Null is the JSON encoding of null.
var Null = json.RawMessage("null")

func builtin(rt *sobek.Runtime, name string) (sobek.Callable, error) {
	obj := rt.Get("JSON")
	if obj == nil {
		return nil, errors.New("jsonv: JSON builtin missing")
	}
	fn, ok := sobek.AssertFunction(obj.ToObject(rt).Get(name))
	if !ok {
		return nil, fmt.Errorf("jsonv: JSON.%s is not a function", name)
	}
	return fn, nil
}

// Stringify serializes v with JSON.stringify. undefined and null encode as
// null; functions, symbols, BigInts and cyclic structures fail.
func Stringify(rt *sobek.Runtime, v sobek.Value) (json.RawMessage, error) {
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return Null, nil
	}
	stringify, err := builtin(rt, "stringify")
	if err != nil {
		return nil, err
	}
	out, err := stringify(sobek.Undefined(), v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSerializable, err)
	}
	if sobek.IsUndefined(out) {
		return nil, fmt.Errorf("%w: %s", ErrNotSerializable, typeOf(v))
	}
	return json.RawMessage(out.String()), nil
}

// Parse decodes raw with JSON.parse. Empty input yields undefined.
func Parse(rt *sobek.Runtime, raw json.RawMessage) (sobek.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return sobek.Undefined(), nil
	}
	parse, err := builtin(rt, "parse")
	if err != nil {
		return nil, err
	}
	v, err := parse(sobek.Undefined(), rt.ToValue(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("jsonv: parse: %w", err)
	}
	return v, nil
}

// Args serializes each value on its own.
func Args(rt *sobek.Runtime, values []sobek.Value) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(values))
	for i, v := range values {
		raw, err := Stringify(rt, v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}

// Spread turns a JSON parameter payload into call arguments: an array is
// spread positionally, null or empty input gives no arguments and anything
// else becomes a single argument.
func Spread(rt *sobek.Runtime, raw json.RawMessage) ([]sobek.Value, error) {
	v, err := Parse(rt, raw)
	if err != nil {
		return nil, err
	}
	if sobek.IsUndefined(v) || sobek.IsNull(v) {
		return nil, nil
	}
	obj, ok := v.(*sobek.Object)
	if !ok || obj.ClassName() != "Array" {
		return []sobek.Value{v}, nil
	}
	n := int(obj.Get("length").ToInteger())
	args := make([]sobek.Value, n)
	for i := range n {
		args[i] = obj.Get(strconv.Itoa(i))
	}
	return args, nil
}

// SpreadRaw applies the Spread rule without a runtime, for calls served by
// Go functions.
func SpreadRaw(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, Null) {
		return nil, nil
	}
	if raw[0] != '[' {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("jsonv: invalid JSON parameters")
		}
		return []json.RawMessage{raw}, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("jsonv: invalid JSON parameters: %w", err)
	}
	return args, nil
}

// Quote encodes msg as a JSON string, falling back to naive quoting.
func Quote(msg string) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return "\"" + msg + "\""
	}
	return string(data)
}

// Decode converts JSON text into the generic document model: map[string]any,
// []any, float64, string, bool and nil.
func Decode(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("jsonv: decode: %w", err)
	}
	return doc, nil
}

// Encode converts a Go value into JSON text.
func Encode(doc any) (json.RawMessage, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotSerializable, err)
	}
	return data, nil
}

func typeOf(v sobek.Value) string {
	if _, ok := sobek.AssertFunction(v); ok {
		return "function"
	}
	if _, ok := v.(*sobek.Symbol); ok {
		return "symbol"
	}
	return "value"
}
