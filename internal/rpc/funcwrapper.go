package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/crgimenes/glazejs/internal/jsonv"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// GoFunc serves one page call with a Go function and returns the JSON of its
// result.
type GoFunc func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// signature is the reflected shape of an exposed Go function.
type signature struct {
	fn       reflect.Value
	takesCtx bool
	params   []reflect.Type
	variadic bool
	value    bool
	err      bool
}

// WrapFunc adapts f to a GoFunc. f may take a leading context.Context, which
// is canceled when its webview goes away; the remaining parameters are
// decoded from the page arguments, spread the same way as for script
// functions. Missing trailing arguments take their zero value. f returns
// nothing, a value, an error, or a value and an error.
func WrapFunc(f any) (GoFunc, error) {
	s, err := inspect(f)
	if err != nil {
		return nil, err
	}
	return s.call, nil
}

func inspect(f any) (*signature, error) {
	v := reflect.ValueOf(f)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.New("only functions can be exposed")
	}
	t := v.Type()
	s := &signature{fn: v, variadic: t.IsVariadic()}

	for i := range t.NumIn() {
		in := t.In(i)
		if i == 0 && in == contextType {
			s.takesCtx = true
			continue
		}
		s.params = append(s.params, in)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			s.err = true
		} else {
			s.value = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, errors.New("second return value must be error")
		}
		s.value, s.err = true, true
	default:
		return nil, errors.New("function may only return a value, an error, or both")
	}
	return s, nil
}

func (s *signature) call(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	raw, err := jsonv.SpreadRaw(params)
	if err != nil {
		return nil, err
	}
	args, err := s.decode(raw)
	if err != nil {
		return nil, err
	}
	if s.takesCtx {
		args = append([]reflect.Value{reflect.ValueOf(&ctx).Elem()}, args...)
	}

	var out []reflect.Value
	if s.variadic {
		out = s.fn.CallSlice(args)
	} else {
		out = s.fn.Call(args)
	}

	if s.err {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return nil, e
		}
	}
	if !s.value {
		return jsonv.Null, nil
	}
	data, err := json.Marshal(out[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return data, nil
}

// decode builds the positional arguments. A variadic tail collects every
// argument past the fixed ones.
func (s *signature) decode(raw []json.RawMessage) ([]reflect.Value, error) {
	fixed := len(s.params)
	if s.variadic {
		fixed--
	}
	if !s.variadic && len(raw) > fixed {
		return nil, fmt.Errorf("too many arguments: want at most %d, got %d", fixed, len(raw))
	}

	args := make([]reflect.Value, 0, len(s.params))
	for i := range fixed {
		v := reflect.New(s.params[i])
		if i < len(raw) {
			if err := json.Unmarshal(raw[i], v.Interface()); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
		args = append(args, v.Elem())
	}
	if !s.variadic {
		return args, nil
	}

	tail := s.params[fixed]
	rest := reflect.MakeSlice(tail, 0, max(len(raw)-fixed, 0))
	for i := fixed; i < len(raw); i++ {
		v := reflect.New(tail.Elem())
		if err := json.Unmarshal(raw[i], v.Interface()); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		rest = reflect.Append(rest, v.Elem())
	}
	return append(args, rest), nil
}
