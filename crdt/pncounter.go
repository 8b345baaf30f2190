package crdt

import (
	"encoding/json"
	"fmt"
	"math"
)

// PNCounter is a counter supporting both increments and decrements.
// Increments and decrements are tracked by two independent GCounters owned by
// the same replica.
//
// Value() saturates at math.MinInt64 and math.MaxInt64.
//
// The zero value for PNCounter is a zero counter owned by replica with empty
// id. PNCounter must not be copied after first use.
type PNCounter struct {
	p GCounter
	n GCounter
}

// NewPNCounter creates a zero counter owned by replica id.
func NewPNCounter(id string) *PNCounter {
	c := new(PNCounter)
	c.p.id = id
	c.n.id = id
	return c
}

// ID returns identifier of the owning replica.
func (c *PNCounter) ID() string {
	return c.p.ID()
}

// Increment adds one to the counter.
func (c *PNCounter) Increment() {
	c.p.Increment()
}

// Decrement subtracts one from the counter.
func (c *PNCounter) Decrement() {
	c.n.Increment()
}

// IncrementBy adds n to the counter. Non-positive n is ignored.
func (c *PNCounter) IncrementBy(n int64) {
	c.p.IncrementBy(n)
}

// DecrementBy subtracts n from the counter. Non-positive n is ignored.
func (c *PNCounter) DecrementBy(n int64) {
	c.n.IncrementBy(n)
}

// Value returns the difference between all increments and all decrements
// known to c. It may be negative.
func (c *PNCounter) Value() int64 {
	return diff(c.p.Value(), c.n.Value())
}

// LocalValue returns the net value contributed by the owning replica.
func (c *PNCounter) LocalValue() int64 {
	return diff(c.p.LocalValue(), c.n.LocalValue())
}

// Positive returns a copy of the increments counter.
func (c *PNCounter) Positive() *GCounter {
	return c.p.Clone()
}

// Negative returns a copy of the decrements counter.
func (c *PNCounter) Negative() *GCounter {
	return c.n.Clone()
}

// Merge joins state of other into c. Increments are merged with increments and
// decrements with decrements.
func (c *PNCounter) Merge(other *PNCounter) {
	if other == nil || other == c {
		return
	}
	c.p.Merge(&other.p)
	c.n.Merge(&other.n)
}

// Clone returns a copy of c owned by the same replica.
func (c *PNCounter) Clone() *PNCounter {
	ret := new(PNCounter)
	ret.p.reset(c.p.ID(), c.p.Counts())
	ret.n.reset(c.n.ID(), c.n.Counts())
	return ret
}

type pncounterState struct {
	ID string            `json:"id"`
	P  map[string]uint64 `json:"p"`
	N  map[string]uint64 `json:"n"`
}

// MarshalJSON encodes owner id and per-replica entries of both counters.
func (c *PNCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(pncounterState{
		ID: c.p.ID(),
		P:  c.p.Counts(),
		N:  c.n.Counts(),
	})
}

// UnmarshalJSON replaces state of c with the decoded one.
// Increments and decrements are replaced one after another, so concurrent
// readers of c may observe the new increments with the old decrements.
func (c *PNCounter) UnmarshalJSON(p []byte) error {
	var s pncounterState
	if err := json.Unmarshal(p, &s); err != nil {
		return fmt.Errorf("crdt: decode pn-counter: %w", err)
	}
	c.p.reset(s.ID, s.P)
	c.n.reset(s.ID, s.N)
	return nil
}

// JoinPNCounters returns a new counter owned by id holding the join of the
// given counters. Arguments are not modified.
func JoinPNCounters(id string, cs ...*PNCounter) *PNCounter {
	ret := NewPNCounter(id)
	for _, c := range cs {
		ret.Merge(c)
	}
	return ret
}

// diff returns p-n saturated to the int64 range.
func diff(p, n uint64) int64 {
	if p >= n {
		if d := p - n; d <= math.MaxInt64 {
			return int64(d)
		}
		return math.MaxInt64
	}
	if d := n - p; d <= math.MaxInt64 {
		return -int64(d)
	}
	return math.MinInt64
}
