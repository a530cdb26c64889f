package rpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/crgimenes/glazejs/internal/jsonv"
)

// Schema declares the parameters and result of a defined function. Nil
// Params accepts any arguments; a nil Returns means the function yields
// nothing.
type Schema struct {
	Params  []Type `json:"params,omitempty"`
	Returns *Type  `json:"returns,omitempty"`
}

// Result is the declared result type, void when none is set.
func (s Schema) Result() Type {
	if s.Returns == nil {
		return Void()
	}
	return *s.Returns
}

// Binary reports whether a parameter or the result carries raw bytes.
func (s Schema) Binary() bool {
	for _, p := range s.Params {
		if p.Binary() {
			return true
		}
	}
	return s.Result().Binary()
}

// Validate reports declaration errors: unnamed fields, and a rest parameter
// that is not last.
func (s Schema) Validate() error {
	for i, p := range s.Params {
		if p.Rest && i != len(s.Params)-1 {
			return fmt.Errorf("parameter %s: only the last parameter may collect the rest", paramLabel(p, i))
		}
		if err := validateFields(p); err != nil {
			return fmt.Errorf("parameter %s: %w", paramLabel(p, i), err)
		}
	}
	return validateFields(s.Result())
}

func validateFields(t Type) error {
	if t.Elem != nil {
		if err := validateFields(*t.Elem); err != nil {
			return err
		}
	}
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("object field without a name")
		}
		if err := validateFields(f); err != nil {
			return err
		}
	}
	return nil
}

// Check validates call parameters, spread the way page calls spread them,
// against the declared parameters. Missing trailing arguments are accepted
// only when optional.
func (s Schema) Check(params json.RawMessage) error {
	if s.Params == nil {
		return nil
	}
	args, err := jsonv.SpreadRaw(params)
	if err != nil {
		return err
	}

	for i, p := range s.Params {
		if p.Rest {
			for j := i; j < len(args); j++ {
				if err := p.Check(args[j]); err != nil {
					return fmt.Errorf("argument %s[%d]: %w", paramLabel(p, i), j-i, err)
				}
			}
			return nil
		}
		if i >= len(args) {
			if p.Optional {
				continue
			}
			return fmt.Errorf("missing argument %s", paramLabel(p, i))
		}
		if err := p.Check(args[i]); err != nil {
			return fmt.Errorf("argument %s: %w", paramLabel(p, i), err)
		}
	}
	if len(args) > len(s.Params) {
		return fmt.Errorf("too many arguments: want at most %d, got %d", len(s.Params), len(args))
	}
	return nil
}

func paramLabel(p Type, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return "arg" + strconv.Itoa(i)
}

// FuncSchema derives the schema of a Go function accepted by WrapFunc. Types
// are read from the JSON schema of each parameter and result.
func FuncSchema(f any) (Schema, error) {
	sig, err := inspect(f)
	if err != nil {
		return Schema{}, err
	}
	s := Schema{Params: []Type{}}
	for i, in := range sig.params {
		last := i == len(sig.params)-1
		if sig.variadic && last {
			p := TypeOf(in.Elem()).Named("rest")
			p.Rest = true
			s.Params = append(s.Params, p)
			continue
		}
		s.Params = append(s.Params, TypeOf(in).Named("arg"+strconv.Itoa(i)))
	}
	if sig.value {
		r := TypeOf(sig.fn.Type().Out(0))
		s.Returns = &r
	}
	return s, nil
}

var reflector = new(jsonschema.Reflector)

// TypeOf maps the JSON schema of t to a Type. Recursive references read as
// any.
func TypeOf(t reflect.Type) Type {
	root := reflector.ReflectFromType(t)
	return fromSchema(root, root.Definitions, map[string]bool{})
}

func fromSchema(s *jsonschema.Schema, defs jsonschema.Definitions, visiting map[string]bool) Type {
	if s == nil {
		return Any()
	}
	if s.Ref != "" {
		name := strings.TrimPrefix(s.Ref, "#/$defs/")
		def, ok := defs[name]
		if !ok || visiting[name] {
			return Any()
		}
		visiting[name] = true
		defer delete(visiting, name)
		return fromSchema(def, defs, visiting)
	}
	switch s.Type {
	case "string":
		return String()
	case "number", "integer":
		return Number()
	case "boolean":
		return Boolean()
	case "null":
		return Void()
	case "array":
		return ArrayOf(fromSchema(s.Items, defs, visiting))
	case "object":
		if s.Properties == nil || s.Properties.Len() == 0 {
			return ObjectOf()
		}
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		var fields []Type
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			f := fromSchema(pair.Value, defs, visiting).Named(pair.Key)
			f.Optional = !required[pair.Key]
			fields = append(fields, f)
		}
		return ObjectOf(fields...)
	default:
		return Any()
	}
}
