package jsonv

import (
	"encoding/json"
	"testing"

	"github.com/grafana/sobek"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripMixedValue(t *testing.T) {
	rt := sobek.New()
	src, err := rt.RunString(`({n: 1.5, s: "x", z: null, list: [1, "two", [3]], nested: {ok: true}})`)
	require.NoError(t, err)

	raw, err := Stringify(rt, src)
	require.NoError(t, err)

	back, err := Parse(rt, raw)
	require.NoError(t, err)
	assert.Equal(t, src.Export(), back.Export())

	doc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n":      1.5,
		"s":      "x",
		"z":      nil,
		"list":   []any{float64(1), "two", []any{float64(3)}},
		"nested": map[string]any{"ok": true},
	}, doc)

	again, err := Encode(doc)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(again))
}

func TestStringifyNullish(t *testing.T) {
	rt := sobek.New()
	for _, v := range []sobek.Value{nil, sobek.Undefined(), sobek.Null()} {
		raw, err := Stringify(rt, v)
		require.NoError(t, err)
		assert.Equal(t, "null", string(raw))
	}
}

func TestStringifyUnrepresentable(t *testing.T) {
	rt := sobek.New()
	tests := map[string]string{
		"function": `(function() {})`,
		"symbol":   `Symbol("s")`,
		"cycle":    `(() => { const o = {}; o.self = o; return o })()`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := rt.RunString(src)
			require.NoError(t, err)
			_, err = Stringify(rt, v)
			assert.ErrorIs(t, err, ErrNotSerializable)
		})
	}
}

func TestParseEmptyIsUndefined(t *testing.T) {
	rt := sobek.New()
	v, err := Parse(rt, nil)
	require.NoError(t, err)
	assert.True(t, sobek.IsUndefined(v))

	_, err = Parse(rt, json.RawMessage(`{broken`))
	assert.Error(t, err)
}

func TestSpread(t *testing.T) {
	rt := sobek.New()
	tests := []struct {
		name string
		raw  string
		want []any
	}{
		{"array", `[1, "a", null]`, []any{int64(1), "a", nil}},
		{"scalar", `"solo"`, []any{"solo"}},
		{"object", `{"k": 2}`, []any{map[string]any{"k": int64(2)}}},
		{"null", `null`, nil},
		{"empty", ``, nil},
		{"empty array", `[]`, []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := Spread(rt, json.RawMessage(tt.raw))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, args)
				return
			}
			got := make([]any, len(args))
			for i, a := range args {
				got[i] = a.Export()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpreadRawMatchesSpread(t *testing.T) {
	rt := sobek.New()
	for _, in := range []string{``, `null`, `[]`, `[1, "a"]`, `7`, `"x"`, `{"k": 1}`, `[[1, 2]]`} {
		t.Run(in, func(t *testing.T) {
			raw, err := SpreadRaw(json.RawMessage(in))
			require.NoError(t, err)
			vals, err := Spread(rt, json.RawMessage(in))
			require.NoError(t, err)
			require.Len(t, raw, len(vals))
			for i := range raw {
				got, err := Stringify(rt, vals[i])
				require.NoError(t, err)
				assert.JSONEq(t, string(got), string(raw[i]))
			}
		})
	}
}

func TestSpreadRawInvalid(t *testing.T) {
	for _, in := range []string{`[1,`, `nope`} {
		_, err := SpreadRaw(json.RawMessage(in))
		assert.Error(t, err, in)
	}
}

func TestArgs(t *testing.T) {
	rt := sobek.New()
	out, err := Args(rt, []sobek.Value{rt.ToValue(1), rt.ToValue("a"), sobek.Undefined()})
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage("1"), json.RawMessage(`"a"`), Null}, out)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"he said \"hi\""`, Quote(`he said "hi"`))
}
