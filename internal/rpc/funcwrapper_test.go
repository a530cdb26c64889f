package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFuncRejectsSignatures(t *testing.T) {
	tests := []struct {
		name string
		f    any
	}{
		{"not a function", "add"},
		{"nil function", (func())(nil)},
		{"three results", func() (int, int, int) { return 0, 0, 0 }},
		{"second result not error", func() (int, int) { return 0, 0 }},
		{"error wrapper as second result", func() (int, *json.SyntaxError) { return 0, nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WrapFunc(tt.f)
			assert.Error(t, err)
		})
	}
}

func TestWrapFuncSpreadsParameters(t *testing.T) {
	echo := func(args ...any) []any { return args }
	count := func(args ...json.RawMessage) int { return len(args) }

	tests := []struct {
		name   string
		f      any
		params string
		want   string
	}{
		{"array spreads", func(a, b int) int { return a + b }, `[40, 2]`, `42`},
		{"scalar is one argument", func(n int) int { return n * 2 }, `21`, `42`},
		{"string scalar", func(s string) string { return strings.ToUpper(s) }, `"hi"`, `"HI"`},
		{"object scalar", func(m map[string]int) int { return m["k"] }, `{"k": 7}`, `7`},
		{"nested array is one argument", func(xs []int) int { return len(xs) }, `[[1, 2, 3]]`, `3`},
		{"null gives no arguments", count, `null`, `0`},
		{"empty gives no arguments", count, ``, `0`},
		{"missing arguments are zero", func(a, b int) int { return a + b }, `[5]`, `5`},
		{"variadic collects the tail", echo, `[1, "x", null]`, `[1, "x", null]`},
		{"variadic with a scalar", echo, `true`, `[true]`},
		{"no result is null", func(int) {}, `[1]`, `null`},
		{"nil error is null", func() error { return nil }, `[]`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := WrapFunc(tt.f)
			require.NoError(t, err)
			got, err := fn(context.Background(), json.RawMessage(tt.params))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestWrapFuncFailures(t *testing.T) {
	tests := []struct {
		name   string
		f      any
		params string
		want   string
	}{
		{"too many arguments", func(a int) int { return a }, `[1, 2]`, "too many arguments"},
		{"wrong argument type", func(a int) int { return a }, `["x"]`, "argument 0"},
		{"invalid JSON", func() {}, `[1,`, "invalid JSON"},
		{"returned error", func() error { return errors.New("boom") }, ``, "boom"},
		{"value and error", func(n int) (int, error) { return 0, errors.New("negative") }, `-1`, "negative"},
		{"unserializable result", func() chan int { return make(chan int) }, ``, "result"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := WrapFunc(tt.f)
			require.NoError(t, err)
			_, err = fn(context.Background(), json.RawMessage(tt.params))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWrapFuncPassesContext(t *testing.T) {
	type key struct{}
	fn, err := WrapFunc(func(ctx context.Context, name string) (string, error) {
		v, _ := ctx.Value(key{}).(string)
		return v + name, ctx.Err()
	})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), key{}, "hello ")
	got, err := fn(ctx, json.RawMessage(`"page"`))
	require.NoError(t, err)
	assert.JSONEq(t, `"hello page"`, string(got))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = fn(canceled, json.RawMessage(`"page"`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWrapFuncStructResult(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age,omitempty"`
	}
	fn, err := WrapFunc(func(u user) user {
		u.Age++
		return u
	})
	require.NoError(t, err)

	got, err := fn(context.Background(), json.RawMessage(`{"name": "Ada", "age": 36}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Ada", "age": 37}`, string(got))
}
