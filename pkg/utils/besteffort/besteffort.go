// Package besteffort runs side effects whose failure must never reach the caller.
//
// Contract: the operation runs at most once, is never retried, and its error is
// logged through zaplogger and then dropped. Callers get no completion signal.
// Heartbeats, throttled activity writes, unload hints and incident records all
// go through here.
package besteffort

import (
	"context"
	"time"

	"github.com/nsvirk/attendanceapi/pkg/utils/zaplogger"
)

// DefaultTimeout bounds detached operations started with Go.
const DefaultTimeout = 10 * time.Second

// Op is a single best-effort side effect.
type Op func(ctx context.Context) error

// Option tweaks how a failure is reported.
type Option func(*options)

type options struct {
	quiet   func(error) bool
	timeout time.Duration
}

// Quiet suppresses logging for errors matching fn, e.g. expected permission denials.
func Quiet(fn func(error) bool) Option {
	return func(o *options) { o.quiet = fn }
}

// WithTimeout overrides DefaultTimeout for Go.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Run executes op synchronously and swallows its error.
// It reports whether op succeeded so callers may adjust local bookkeeping.
func Run(ctx context.Context, name string, fields zaplogger.Fields, op Op, opts ...Option) bool {
	o := apply(opts)
	err := op(ctx)
	if err == nil {
		return true
	}
	if o.quiet != nil && o.quiet(err) {
		return false
	}
	logged := zaplogger.Fields{"op": name, "error": err.Error()}
	for k, v := range fields {
		logged[k] = v
	}
	zaplogger.Warn("best-effort operation failed", logged)
	return false
}

// Go executes op on its own goroutine with a context detached from the caller,
// so it survives the request or connection that triggered it.
func Go(name string, fields zaplogger.Fields, op Op, opts ...Option) {
	o := apply(opts)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		Run(ctx, name, fields, op, opts...)
	}()
}

func apply(opts []Option) options {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
