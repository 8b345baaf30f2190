package crdt

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

// GCounter is a grow-only counter.
// Only the entry of the owning replica is incremented locally; entries of other
// replicas are learned through Merge().
//
// Entries and sums saturate at math.MaxUint64 instead of wrapping around.
//
// The zero value for GCounter is an empty counter owned by replica with empty
// id.
type GCounter struct {
	mu     sync.RWMutex
	id     string
	counts map[string]uint64
}

// NewGCounter creates an empty counter owned by replica id.
func NewGCounter(id string) *GCounter {
	return &GCounter{
		id:     id,
		counts: make(map[string]uint64),
	}
}

// ID returns identifier of the owning replica.
func (c *GCounter) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Increment adds one to the owner's entry.
func (c *GCounter) Increment() {
	c.IncrementBy(1)
}

// IncrementBy adds n to the owner's entry.
// Non-positive n is ignored: the counter never decreases.
func (c *GCounter) IncrementBy(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]uint64)
	}
	c.counts[c.id] = add(c.counts[c.id], uint64(n))
}

// Value returns the sum of entries of all known replicas.
func (c *GCounter) Value() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var sum uint64
	for _, n := range c.counts {
		sum = add(sum, n)
	}
	return sum
}

// LocalValue returns the owner's entry.
func (c *GCounter) LocalValue() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[c.id]
}

// Counts returns a copy of per-replica entries.
func (c *GCounter) Counts() map[string]uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyCounts(c.counts)
}

// Merge joins state of other into c.
// Both counters may be used concurrently; other is not modified.
func (c *GCounter) Merge(other *GCounter) {
	if other == nil || other == c {
		return
	}
	c.MergeCounts(other.Counts())
}

// MergeCounts joins per-replica entries received from elsewhere into c, taking
// the maximum of every entry.
func (c *GCounter) MergeCounts(counts map[string]uint64) {
	if len(counts) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]uint64, len(counts))
	}
	for id, n := range counts {
		if n > c.counts[id] {
			c.counts[id] = n
		}
	}
}

// Clone returns a copy of c owned by the same replica.
func (c *GCounter) Clone() *GCounter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &GCounter{
		id:     c.id,
		counts: copyCounts(c.counts),
	}
}

// reset replaces owner and entries of c.
func (c *GCounter) reset(id string, counts map[string]uint64) {
	if counts == nil {
		counts = make(map[string]uint64)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
	c.counts = counts
}

type gcounterState struct {
	ID     string            `json:"id"`
	Counts map[string]uint64 `json:"counts"`
}

// MarshalJSON encodes owner id and all per-replica entries.
func (c *GCounter) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	s := gcounterState{
		ID:     c.id,
		Counts: copyCounts(c.counts),
	}
	c.mu.RUnlock()
	return json.Marshal(s)
}

// UnmarshalJSON replaces state of c with the decoded one.
func (c *GCounter) UnmarshalJSON(p []byte) error {
	var s gcounterState
	if err := json.Unmarshal(p, &s); err != nil {
		return fmt.Errorf("crdt: decode g-counter: %w", err)
	}
	c.reset(s.ID, s.Counts)
	return nil
}

// JoinGCounters returns a new counter owned by id holding the join of the
// given counters. Arguments are not modified.
func JoinGCounters(id string, cs ...*GCounter) *GCounter {
	ret := NewGCounter(id)
	for _, c := range cs {
		ret.Merge(c)
	}
	return ret
}

// add returns a+b saturated at math.MaxUint64.
func add(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func copyCounts(counts map[string]uint64) map[string]uint64 {
	ret := make(map[string]uint64, len(counts))
	for id, n := range counts {
		ret[id] = n
	}
	return ret
}
