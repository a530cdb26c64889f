package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies a declared type.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindBuffer
	KindUint8
	KindVoid
	KindArray
	KindObject
)

var kindNames = map[Kind]string{
	KindAny:     "any",
	KindString:  "string",
	KindNumber:  "number",
	KindBoolean: "boolean",
	KindBuffer:  "buffer",
	KindUint8:   "uint8",
	KindVoid:    "void",
	KindArray:   "array",
	KindObject:  "object",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText accepts the kind names and their script spellings
// ("Buffer", "ArrayBuffer", "Uint8Array").
func (k *Kind) UnmarshalText(text []byte) error {
	s := string(text)
	switch s {
	case "Buffer", "ArrayBuffer":
		*k = KindBuffer
		return nil
	case "Uint8Array":
		*k = KindUint8
		return nil
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown type %q", s)
}

// Type is the declared type of a parameter, field or result.
type Type struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name,omitempty"`
	Optional bool   `json:"optional,omitempty"`

	// Rest marks a trailing parameter that collects the remaining arguments.
	Rest bool `json:"rest,omitempty"`

	Elem   *Type  `json:"elem,omitempty"`
	Fields []Type `json:"fields,omitempty"`
}

// UnmarshalJSON also accepts a bare kind name such as "number".
func (t *Type) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Type{}
		return t.Kind.UnmarshalText([]byte(s))
	}
	type plain Type
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Type(p)
	return nil
}

func String() Type  { return Type{Kind: KindString} }
func Number() Type  { return Type{Kind: KindNumber} }
func Boolean() Type { return Type{Kind: KindBoolean} }
func Buffer() Type  { return Type{Kind: KindBuffer} }
func Uint8() Type   { return Type{Kind: KindUint8} }
func Any() Type     { return Type{Kind: KindAny} }
func Void() Type    { return Type{Kind: KindVoid} }

// ArrayOf is an array of elem.
func ArrayOf(elem Type) Type { return Type{Kind: KindArray, Elem: &elem} }

// ObjectOf is an object with the given named fields, in order.
func ObjectOf(fields ...Type) Type { return Type{Kind: KindObject, Fields: fields} }

// Named returns t as a parameter or field called name.
func (t Type) Named(name string) Type {
	t.Name = name
	return t
}

// Opt returns t marked optional.
func (t Type) Opt() Type {
	t.Optional = true
	return t
}

// Binary reports whether values of t carry raw bytes.
func (t Type) Binary() bool {
	switch t.Kind {
	case KindBuffer, KindUint8:
		return true
	case KindArray:
		return t.Elem != nil && t.Elem.Binary()
	case KindObject:
		for _, f := range t.Fields {
			if f.Binary() {
				return true
			}
		}
	}
	return false
}

// TS renders t as a TypeScript type.
func (t Type) TS() string {
	switch t.Kind {
	case KindString, KindNumber, KindBoolean, KindVoid:
		return t.Kind.String()
	case KindBuffer:
		return "ArrayBuffer"
	case KindUint8:
		return "Uint8Array"
	case KindArray:
		if t.Elem == nil {
			return "any[]"
		}
		return t.Elem.TS() + "[]"
	case KindObject:
		if len(t.Fields) == 0 {
			return "Record<string, any>"
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + optionalMark(f) + ": " + f.TS()
		}
		return "{ " + strings.Join(parts, "; ") + " }"
	default:
		return "any"
	}
}

func optionalMark(t Type) string {
	if t.Optional {
		return "?"
	}
	return ""
}

// Check validates one JSON value against t. Null satisfies optional types.
func (t Type) Check(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("missing %s", t.TS())
	}
	if bytes.Equal(raw, []byte("null")) {
		if t.Optional || t.Kind == KindAny || t.Kind == KindVoid {
			return nil
		}
		return fmt.Errorf("want %s, got null", t.TS())
	}

	got := jsonKind(raw)
	switch t.Kind {
	case KindAny, KindBuffer, KindUint8:
		return nil
	case KindVoid:
		return fmt.Errorf("want void, got %s", got)
	case KindString, KindNumber, KindBoolean:
		if got != t.Kind.String() {
			return fmt.Errorf("want %s, got %s", t.Kind, got)
		}
		return nil
	case KindArray:
		var items []json.RawMessage
		if got != "array" || json.Unmarshal(raw, &items) != nil {
			return fmt.Errorf("want %s, got %s", t.TS(), got)
		}
		if t.Elem == nil {
			return nil
		}
		for i, item := range items {
			if err := t.Elem.Check(item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case KindObject:
		var obj map[string]json.RawMessage
		if got != "object" || json.Unmarshal(raw, &obj) != nil {
			return fmt.Errorf("want object, got %s", got)
		}
		for _, f := range t.Fields {
			v, ok := obj[f.Name]
			if !ok {
				if f.Optional {
					continue
				}
				return fmt.Errorf("missing field %s", f.Name)
			}
			if err := f.Check(v); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
		}
		return nil
	}
	return nil
}

// jsonKind names the JSON type of a trimmed, non-empty value.
func jsonKind(raw json.RawMessage) string {
	switch raw[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
