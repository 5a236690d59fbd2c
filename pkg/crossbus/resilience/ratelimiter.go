package resilience

import (
	"sync"
	"time"

	"github.com/crossbus-io/crossbus/pkg/crossbus/xerrors"
)

// TokenBucket is a token-bucket rate limiter: capacity maxRequests, refill
// proportional to elapsed/window, fully refilled on a window boundary.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	window     time.Duration
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket builds a bucket starting full.
func NewTokenBucket(maxRequests int, window time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(maxRequests),
		window:     window,
		tokens:     float64(maxRequests),
		lastRefill: time.Now(),
	}
}

func (b *TokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	refill := b.capacity * (float64(elapsed) / float64(b.window))
	b.tokens += refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// TryAcquire consumes one token, returning true if one was available.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns how long until the next fractional token becomes
// available, never earlier than the next refill tick.
func (b *TokenBucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= 1 {
		return 0
	}
	need := 1 - b.tokens
	perToken := b.window / time.Duration(b.capacity)
	wait := time.Duration(need * float64(perToken))
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Hook returns a func() error (not a hook.Fn): each call consumes a token
// and returns nil, or returns CodeRateLimited with retryAfterMs in its
// details when the bucket is empty. It does not drop messages itself.
func (b *TokenBucket) Hook() func() error {
	return func() error {
		if b.TryAcquire() {
			return nil
		}
		return xerrors.From(xerrors.CodeRateLimited, map[string]interface{}{
			"retryAfterMs": b.RetryAfter().Milliseconds(),
		})
	}
}

// PerPeerLimiters shares one set of options across many per-peer buckets,
// created lazily on first use.
type PerPeerLimiters struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string]*TokenBucket
}

func NewPerPeerLimiters(maxRequests int, window time.Duration) *PerPeerLimiters {
	return &PerPeerLimiters{maxRequests: maxRequests, window: window, buckets: make(map[string]*TokenBucket)}
}

func (p *PerPeerLimiters) For(peer string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[peer]
	if !ok {
		b = NewTokenBucket(p.maxRequests, p.window)
		p.buckets[peer] = b
	}
	return b
}
