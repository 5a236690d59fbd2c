// Package hook implements the ordered inbound/outbound transform
// pipelines: priority order, serial execution, and per-hook error
// isolation. A failing hook is reported and bypassed while the previous
// payload flows on to the next hook.
package hook

import (
	"sort"
	"sync"
)

// Direction is which pipeline a hook belongs to.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Context is passed to every hook alongside the payload.
type Context struct {
	Direction   Direction
	Type        string // envelope type tag
	LocalPeer   string
	RemotePeer  string
	HandlerName string
}

// Fn transforms a payload. Returning (nil, nil) on the outbound direction
// drops the message; on inbound, nil is treated as "unchanged".
type Fn func(payload interface{}, ctx Context) (interface{}, error)

type hookEntry struct {
	id       uint64
	priority int
	fn       Fn
	sequence uint64
}

// Pipeline is one ordered list of hooks (either inbound or outbound).
type Pipeline struct {
	mu      sync.Mutex
	hooks   []*hookEntry
	nextID  uint64
	nextSeq uint64
	onError func(err error)
}

// NewPipeline builds an empty pipeline. onError, if set, is invoked
// whenever a hook panics or returns an error.
func NewPipeline(onError func(err error)) *Pipeline {
	return &Pipeline{onError: onError}
}

// ID identifies a registered hook for later removal.
type ID uint64

// Add registers fn at the given priority (lower runs first; default 10 is
// the caller's convention, not enforced here). Returns an id for Remove.
func (p *Pipeline) Add(priority int, fn Fn) ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.nextSeq++
	e := &hookEntry{id: p.nextID, priority: priority, fn: fn, sequence: p.nextSeq}
	p.hooks = append(p.hooks, e)
	sort.SliceStable(p.hooks, func(i, j int) bool {
		if p.hooks[i].priority != p.hooks[j].priority {
			return p.hooks[i].priority < p.hooks[j].priority
		}
		return p.hooks[i].sequence < p.hooks[j].sequence
	})
	return ID(e.id)
}

// Remove unregisters the hook with the given id.
func (p *Pipeline) Remove(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.hooks[:0:0]
	for _, e := range p.hooks {
		if e.id != uint64(id) {
			out = append(out, e)
		}
	}
	p.hooks = out
}

func (p *Pipeline) snapshot() []*hookEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*hookEntry, len(p.hooks))
	copy(out, p.hooks)
	return out
}

// Run executes every hook in priority order, feeding each hook's output to
// the next. A hook that errors (or panics) is logged via onError and its
// transform discarded: the payload from before that hook flows onward
// unchanged, and subsequent hooks still run. Outbound: returning a nil
// payload with a nil error drops the message (Run returns ok=false).
func (p *Pipeline) Run(direction Direction, payload interface{}, ctx Context) (out interface{}, ok bool) {
	ctx.Direction = direction
	current := payload
	for _, e := range p.snapshot() {
		next, err := p.invoke(e, current, ctx)
		if err != nil {
			if p.onError != nil {
				p.onError(err)
			}
			continue
		}
		if next == nil {
			if direction == DirectionOutbound {
				return nil, false
			}
			// inbound nil means "unchanged"
			continue
		}
		current = next
	}
	return current, true
}

func (p *Pipeline) invoke(e *hookEntry, payload interface{}, ctx Context) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			if asErr, ok := rec.(error); ok {
				err = asErr
			} else {
				err = panicError{rec}
			}
		}
	}()
	return e.fn(payload, ctx)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string { return "hook panicked" }
