package events

import (
	"github.com/grafana/sobek"

	"github.com/crgimenes/glazejs/internal/native"
)

// Evaluate runs every handler of a gating event and returns the verdict.
// The result starts as allow; a handler returning false or "block", or one
// that throws, denies. A denial is final but later handlers still run.
// Handlers that cannot be dispatched cast no vote.
func (r *Registry) Evaluate(ev native.Event) bool {
	name := ev.Name()
	args := Args(ev)
	allow := true

	for _, e := range r.snapshot(name) {
		if !e.claim() {
			continue
		}
		var deny bool
		err := e.inv.Invoke(func(rt *sobek.Runtime, fn sobek.Callable) error {
			v, err := fn(sobek.Undefined(), args(rt)...)
			if err != nil {
				deny = true
				r.loop.ReportError(err)
				return nil
			}
			deny = Denies(v)
			return nil
		})
		if err != nil {
			r.log.Debug().Err(err).Str("event", string(name)).Msg("policy handler not dispatched")
			continue
		}
		if deny {
			allow = false
		}
	}
	r.prune(name)

	r.log.Debug().Str("event", string(name)).Bool("allow", allow).Msg("policy evaluated")
	return allow
}

// Denies interprets one handler verdict.
func Denies(v sobek.Value) bool {
	if v == nil {
		return false
	}
	switch x := v.Export().(type) {
	case bool:
		return !x
	case string:
		return x == "block"
	}
	return false
}
