// Package pending implements the pending-request table: id allocation,
// promise-backed completion, timeouts and cancellation, with a
// caller-supplied deadline and a cancelable timer per entry.
package pending

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// Result is what a Promise resolves to on success.
type Result struct {
	Data interface{}
}

// Promise is a single-completion future. Exactly one of the three
// completion paths (resolve, reject, cancel) fires, and fires once.
type Promise struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	res  Result
	err  error
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) complete(res Result, err error) bool {
	completed := false
	p.once.Do(func() {
		p.mu.Lock()
		p.res, p.err = res, err
		p.mu.Unlock()
		close(p.done)
		completed = true
	})
	return completed
}

// Done returns a channel closed exactly when the promise completes.
func (p *Promise) Done() <-chan struct{} { return p.done }

// Value returns the resolved data/error after Done() has fired. Calling it
// before completion returns the zero value.
func (p *Promise) Value() (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.res.Data, p.err
}

type entry struct {
	id      string
	target  string
	handler string
	promise *Promise
	timer   *time.Timer
}

// Table is the pending-request set.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int

	droppedLateResponses int64
}

// New builds an empty pending table. max of 0 means unlimited.
func New(max int) *Table {
	return &Table{entries: make(map[string]*entry), max: max}
}

// Create allocates a pending request targeting target for handler, with a
// timeout of timeout. It returns the minted request id and its Promise.
// If the table is at its cap, it fails with CodeMaxPending.
func (t *Table) Create(target, handler string, timeout time.Duration) (string, *Promise, error) {
	t.mu.Lock()
	if t.max > 0 && len(t.entries) >= t.max {
		t.mu.Unlock()
		return "", nil, xerrors.From(xerrors.CodeMaxPending, map[string]interface{}{"max": t.max})
	}
	id := uuid.NewString()
	e := &entry{id: id, target: target, handler: handler, promise: newPromise()}
	e.timer = time.AfterFunc(timeout, func() {
		t.completeByID(id, completion{err: xerrors.From(xerrors.CodeResponseTimeout, map[string]interface{}{"requestId": id}), fromTimer: true})
	})
	t.entries[id] = e
	t.mu.Unlock()
	return id, e.promise, nil
}

// pop removes and returns the entry for id, if present and not already
// completing. The invariant "completion path frees the entry before
// yielding control" means this must run under the table lock and the
// timer must be stopped before any blocking operation.
func (t *Table) pop(id string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil
	}
	delete(t.entries, id)
	return e
}

// completion describes one completion attempt: the outcome to install, and
// where the attempt came from. Responses attempted against an entry that is
// already gone are what the late-drop counter tracks.
type completion struct {
	res        Result
	err        error
	fromTimer  bool
	isResponse bool
}

func (t *Table) completeByID(id string, c completion) {
	e := t.pop(id)
	if e == nil {
		if c.isResponse {
			atomic.AddInt64(&t.droppedLateResponses, 1)
		}
		return
	}
	if !c.fromTimer && e.timer != nil {
		e.timer.Stop()
	}
	e.promise.complete(c.res, c.err)
}

// Resolve completes id successfully with data, or with a wrapped remote
// error if success is false. A response arriving after its entry already
// completed is dropped silently and counted.
func (t *Table) Resolve(id string, success bool, data interface{}, remoteErr *xerrors.Error) {
	if success {
		t.completeByID(id, completion{res: Result{Data: data}, isResponse: true})
		return
	}
	var err error
	if remoteErr != nil {
		err = remoteErr
	} else {
		err = xerrors.From(xerrors.CodeInvalidMessage, map[string]interface{}{"requestId": id, "reason": "failure response carried no error"})
	}
	t.completeByID(id, completion{err: err, isResponse: true})
}

// Reject completes id with an arbitrary error.
func (t *Table) Reject(id string, err error) {
	t.completeByID(id, completion{err: err})
}

// Cancel rejects id with a cancellation error. Returns false if id was
// already completed or never existed.
func (t *Table) Cancel(id string, reason string) bool {
	e := t.pop(id)
	if e == nil {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	details := map[string]interface{}{"requestId": id}
	if reason != "" {
		details["reason"] = reason
	}
	return e.promise.complete(Result{}, xerrors.From(xerrors.CodeCancelled, details))
}

// CancelForPeer rejects every pending entry targeting peer; peer loss
// tears down its in-flight requests.
func (t *Table) CancelForPeer(peer string) {
	t.mu.Lock()
	var ids []string
	for id, e := range t.entries {
		if e.target == peer {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.completeByID(id, completion{err: xerrors.From(xerrors.CodePeerDisconnected, map[string]interface{}{"peer": peer})})
	}
}

// CancelAll rejects every pending entry with CodeDestroyed (bus teardown).
func (t *Table) CancelAll() {
	t.mu.Lock()
	var ids []string
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		t.completeByID(id, completion{err: xerrors.From(xerrors.CodeDestroyed, nil)})
	}
}

// Len reports how many requests are currently pending.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// DroppedLateResponses reports how many responses arrived after their
// pending entry had already completed (timeout/cancel) and were dropped
// silently.
func (t *Table) DroppedLateResponses() int64 {
	return atomic.LoadInt64(&t.droppedLateResponses)
}
