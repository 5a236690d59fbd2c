package resilience

import (
	"sync"
	"time"

	plog "github.com/prometheus/common/log"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// BreakerState is one of the three circuit breaker states. Transitions are
// closed -> open -> half-open -> {closed, open}; no others occur.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// CircuitBreaker wraps calls, tripping open after consecutive failures and
// recovering through a half-open probe phase.
type CircuitBreaker struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	OnTransition     func(from, to BreakerState)

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker builds a breaker starting in the closed state.
func NewCircuitBreaker(failureThreshold, successThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		ResetTimeout:     resetTimeout,
		state:            BreakerClosed,
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inspectLocked()
}

// inspectLocked applies the open -> half-open transition lazily, the way a
// real breaker has no background timer: the next call to find out the
// state is what notices the reset timeout elapsed.
func (b *CircuitBreaker) inspectLocked() BreakerState {
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.ResetTimeout {
		b.transitionLocked(BreakerHalfOpen)
		b.successes = 0
	}
	return b.state
}

func (b *CircuitBreaker) transitionLocked(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	plog.Infof("circuit breaker %s -> %s", from, to)
	if b.OnTransition != nil {
		b.OnTransition(from, to)
	}
}

// Execute calls fn, recording the outcome against the breaker. When open,
// fn is never invoked and Execute returns CodeCircuitOpen immediately.
func (b *CircuitBreaker) Execute(fn func() error) error {
	b.mu.Lock()
	state := b.inspectLocked()
	if state == BreakerOpen {
		b.mu.Unlock()
		return xerrors.From(xerrors.CodeCircuitOpen, nil)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerHalfOpen:
		if err != nil {
			b.transitionLocked(BreakerOpen)
			b.openedAt = time.Now()
			b.failures = 0
			return err
		}
		b.successes++
		if b.successes >= max(b.SuccessThreshold, 1) {
			b.transitionLocked(BreakerClosed)
			b.failures = 0
		}
		return nil
	default: // closed
		if err != nil {
			b.failures++
			if b.failures >= max(b.FailureThreshold, 1) {
				b.transitionLocked(BreakerOpen)
				b.openedAt = time.Now()
			}
			return err
		}
		b.failures = 0
		return nil
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
