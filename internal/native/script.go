package native

import (
	"errors"
	"fmt"
	"strings"
)

// MaxScriptArgs bounds the positional arguments of Execute and Evaluate.
const MaxScriptArgs = 16

// ErrTooManyArgs is returned when more than MaxScriptArgs arguments are given.
var ErrTooManyArgs = fmt.Errorf("native: at most %d script arguments", MaxScriptArgs)

// ErrPlaceholders is returned when placeholders and arguments disagree.
var ErrPlaceholders = errors.New("native: placeholder count does not match arguments")

// Format substitutes args into the {} placeholders of code, in order. {{ and
// }} stand for literal braces. Without args code is returned untouched.
func Format(code string, args ...string) (string, error) {
	if len(args) == 0 {
		return code, nil
	}
	if len(args) > MaxScriptArgs {
		return "", ErrTooManyArgs
	}

	var b strings.Builder
	b.Grow(len(code))
	next := 0
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '{' && i+1 < len(code) && code[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(code) && code[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{' && i+1 < len(code) && code[i+1] == '}':
			if next >= len(args) {
				return "", fmt.Errorf("%w: more than %d placeholders", ErrPlaceholders, len(args))
			}
			b.WriteString(args[next])
			next++
			i++
		default:
			b.WriteByte(c)
		}
	}
	if next != len(args) {
		return "", fmt.Errorf("%w: %d placeholders for %d arguments", ErrPlaceholders, next, len(args))
	}
	return b.String(), nil
}

// InjectTime selects when an injected script runs.
type InjectTime int

const (
	InjectCreation InjectTime = iota
	InjectReady
)

// Frame selects which frames an injected script runs in.
type Frame int

const (
	FrameTop Frame = iota
	FrameAll
)

// Script is code injected into every page load.
type Script struct {
	Code      string
	Time      InjectTime
	Frame     Frame
	Permanent bool
}

// EmbeddedFile is an in-memory file servable to the page.
type EmbeddedFile struct {
	Content []byte
	Mime    string
}

// EmbeddedURL is the address under which an embedded file is served.
func EmbeddedURL(name string) string {
	return "glaze://embedded/" + strings.TrimPrefix(name, "/")
}
