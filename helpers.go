package glazejs

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"reflect"
	"strings"
	"unicode"
)

// exposer is the part of Webview ExposeMethods needs.
type exposer interface {
	ExposeFunc(name string, f any) error
}

// ExposeMethods exposes every exported method of obj to the page as
// {prefix}_{snake_case_method}. Methods follow the ExposeFunc rules: return
// nothing, a value, an error, or (value, error).
//
// It returns the exposed names and the first error encountered.
func (w *Webview) ExposeMethods(prefix string, obj any) ([]string, error) {
	return exposeMethods(w, prefix, obj)
}

func exposeMethods(w exposer, prefix string, obj any) ([]string, error) {
	if rw := reflect.ValueOf(w); !rw.IsValid() || (rw.Kind() == reflect.Pointer && rw.IsNil()) {
		return nil, errors.New("expose methods: nil webview")
	}
	v := reflect.ValueOf(obj)
	if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
		return nil, errors.New("expose methods: nil object")
	}
	t := v.Type()

	var bound []string
	for i := range t.NumMethod() {
		method := t.Method(i)
		if !method.IsExported() {
			continue
		}

		name := camelToSnake(method.Name)
		if prefix != "" {
			name = prefix + "_" + name
		}
		if err := w.ExposeFunc(name, v.Method(i).Interface()); err != nil {
			return bound, fmt.Errorf("exposing %s: %w", name, err)
		}
		bound = append(bound, name)
	}
	return bound, nil
}

// camelToSnake converts a CamelCase name to snake_case for JavaScript.
// Example: "GetUserByID" -> "get_user_by_id"
func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)

	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		// An underscore starts each word: after a lowercase rune, or before
		// the last capital of an acronym that is followed by lowercase.
		if i > 0 {
			prev := runes[i-1]
			if unicode.IsLower(prev) || (i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// RenderHTML executes a named template to a string, suitable for LoadHTML or
// an embedded file.
func RenderHTML(tpl *template.Template, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
