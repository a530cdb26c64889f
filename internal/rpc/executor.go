// Package rpc serves page-side calls to functions exposed by the host.
package rpc

import (
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/crgimenes/glazejs/internal/native"
)

// ReasonDispatchFailed is the rejection reason used when a call cannot be
// scheduled on the host loop.
const ReasonDispatchFailed = `"failed to dispatch RPC to host"`

// ReasonUnknownFunction rejects calls for names that are not exposed.
const ReasonUnknownFunction = `"unknown function"`

// ReasonDestroyed rejects calls still pending when their webview goes away.
const ReasonDestroyed = `"webview destroyed"`

// onceExecutor forwards the first completion and drops the rest.
type onceExecutor struct {
	exec   native.Executor
	log    zerolog.Logger
	done   atomic.Bool
	onDone func()
}

// Once wraps exec so that exactly one of Resolve or Reject reaches it.
func Once(exec native.Executor, log zerolog.Logger) native.Executor {
	return &onceExecutor{exec: exec, log: log}
}

func (o *onceExecutor) Resolve(result json.RawMessage) {
	if !o.done.CompareAndSwap(false, true) {
		o.log.Debug().Msg("rpc result dropped: already completed")
		return
	}
	o.exec.Resolve(result)
	o.finish()
}

func (o *onceExecutor) Reject(reason string) {
	if !o.done.CompareAndSwap(false, true) {
		o.log.Debug().Str("reason", reason).Msg("rpc rejection dropped: already completed")
		return
	}
	o.exec.Reject(reason)
	o.finish()
}

func (o *onceExecutor) finish() {
	if o.onDone != nil {
		o.onDone()
	}
}
