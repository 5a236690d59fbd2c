// Package handler implements the name->function registry and the request
// dispatch that invokes a registered handler and shapes its outcome into a
// response.
package handler

import (
	"context"
	"sync"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Fn is a user request handler. It may block; the caller imposes the
// receiver-side timeout, which is independent of the requester's own
// timer.
type Fn func(ctx context.Context, from string, data interface{}) (interface{}, error)

// Options configures a single handler registration.
type Options struct {
	AllowedPeers []string // empty means any peer may invoke this handler
	Timeout      time.Duration
	Schema       interface{} // opaque; interpreted by the schema validation hook if installed
}

type entry struct {
	fn   Fn
	opts Options
}

// Registry is the handler name->function map.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]entry
}

func New() *Registry {
	return &Registry{handlers: make(map[string]entry)}
}

// Handle registers fn under name. Colliding names fail with
// CodeHandlerExists.
func (r *Registry) Handle(name string, fn Fn, opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return xerrors.From(xerrors.CodeHandlerExists, map[string]interface{}{"handler": name})
	}
	r.handlers[name] = entry{fn: fn, opts: opts}
	return nil
}

// RemoveHandler unregisters name, if present.
func (r *Registry) RemoveHandler(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Names returns every currently-registered handler name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	return out
}

func (r *Registry) get(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handlers[name]
	return e, ok
}

// Invoke runs the named handler against data from peer "from". It
// enforces AllowedPeers, the handler's own timeout (default defaultTimeout
// when the handler did not specify one), and converts panics/errors into
// coded responses:
//   - no handler registered            -> CodeNoHandler
//   - handler returned an error        -> CodeHandlerError (stack not forwarded)
//   - handler exceeded its deadline    -> CodeHandlerTimeout
//   - handler panicked                 -> CodeHandlerError
func (r *Registry) Invoke(ctx context.Context, name, from string, data interface{}, defaultTimeout time.Duration) (interface{}, error) {
	e, ok := r.get(name)
	if !ok {
		return nil, xerrors.From(xerrors.CodeNoHandler, map[string]interface{}{"handler": name})
	}
	if len(e.opts.AllowedPeers) > 0 && !contains(e.opts.AllowedPeers, from) {
		return nil, xerrors.From(xerrors.CodeUnauthorized, map[string]interface{}{"handler": name, "peer": from})
	}

	timeout := e.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		data interface{}
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{nil, xerrors.From(xerrors.CodeHandlerError, map[string]interface{}{"message": panicMessage(rec)})}
			}
		}()
		data, err := e.fn(callCtx, from, data)
		if err != nil {
			done <- outcome{nil, xerrors.From(xerrors.CodeHandlerError, map[string]interface{}{"message": err.Error()})}
			return
		}
		done <- outcome{data, nil}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-callCtx.Done():
		return nil, xerrors.From(xerrors.CodeHandlerTimeout, map[string]interface{}{"handler": name})
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func panicMessage(rec interface{}) string {
	if err, ok := rec.(error); ok {
		return err.Error()
	}
	if s, ok := rec.(string); ok {
		return s
	}
	return "handler panicked"
}
