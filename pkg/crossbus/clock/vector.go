// Package clock implements the vector clock and the causal orderer buffer
// built on top of it: one logical counter per peer, merged on receipt, and
// a bounded buffer that delays delivery until a message's causal
// preconditions hold.
package clock

import "sync"

// Vector is a mapping from peer id to a non-negative logical counter, plus
// the id of the owning peer. Safe for concurrent use.
type Vector struct {
	mu    sync.Mutex
	own   string
	clock map[string]uint64
}

// New creates a Vector clock owned by ownID.
func New(ownID string) *Vector {
	return &Vector{own: ownID, clock: map[string]uint64{ownID: 0}}
}

// Tick increments this clock's own counter and returns the new snapshot.
func (v *Vector) Tick() map[string]uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clock[v.own]++
	return v.snapshotLocked()
}

// Snapshot returns a defensive copy of the current clock.
func (v *Vector) Snapshot() map[string]uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *Vector) snapshotLocked() map[string]uint64 {
	out := make(map[string]uint64, len(v.clock))
	for k, val := range v.clock {
		out[k] = val
	}
	return out
}

// Update takes the componentwise max of this clock and other, the standard
// vector-clock merge on message receipt.
func (v *Vector) Update(other map[string]uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, val := range other {
		if cur, ok := v.clock[k]; !ok || val > cur {
			v.clock[k] = val
		}
	}
}

// HappenedBefore reports whether a happened-before b: componentwise a <= b
// with at least one strict <.
func HappenedBefore(a, b map[string]uint64) bool {
	strict := false
	keys := unionKeys(a, b)
	for _, k := range keys {
		av, bv := a[k], b[k]
		if av > bv {
			return false
		}
		if av < bv {
			strict = true
		}
	}
	return strict
}

// IsConcurrentWith reports whether neither a happened-before b nor b
// happened-before a.
func IsConcurrentWith(a, b map[string]uint64) bool {
	if Equals(a, b) {
		return false
	}
	return !HappenedBefore(a, b) && !HappenedBefore(b, a)
}

// Equals reports whether a and b hold identical counters for every key
// either mentions.
func Equals(a, b map[string]uint64) bool {
	for _, k := range unionKeys(a, b) {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func unionKeys(a, b map[string]uint64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}
