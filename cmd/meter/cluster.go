package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/gobwas/convergent/crdt"
	"github.com/gobwas/convergent/hashring"
)

var errNoOwner = errors.New("no replica owns the key")

type replica struct {
	id      string
	counter *crdt.PNCounter
}

// cluster is a set of metering replicas. Events are routed to replicas by the
// ring; replicas exchange counter snapshots to converge.
type cluster struct {
	log      *slog.Logger
	ring     *hashring.Ring
	replicas []*replica
	byID     map[string]*replica

	// expected is the sum of all recorded deltas.
	expected int64
}

func newCluster(ids []string, vnodes int, log *slog.Logger) *cluster {
	c := &cluster{
		log: log,
		ring: &hashring.Ring{
			Replicas: vnodes,
			Logger:   log,
		},
		byID: make(map[string]*replica, len(ids)),
	}
	for _, id := range ids {
		r := &replica{
			id:      id,
			counter: crdt.NewPNCounter(id),
		}
		c.replicas = append(c.replicas, r)
		c.byID[id] = r
		c.ring.AddNode(id)
	}
	return c
}

// record applies delta for the key at the replica owning the key.
// It returns id of that replica.
func (c *cluster) record(key string, delta int64) (string, error) {
	id, ok := c.ring.GetNode(key)
	if !ok {
		return "", errNoOwner
	}
	r := c.byID[id]
	if delta > 0 {
		r.counter.IncrementBy(delta)
	} else {
		r.counter.DecrementBy(-delta)
	}
	c.expected += delta
	return id, nil
}

// leave removes replica from the ring, so it no longer owns any keys. Its
// counter keeps taking part in gossip.
func (c *cluster) leave(id string) bool {
	return c.ring.RemoveNode(id)
}

// gossip makes every replica send its snapshot to one random peer. All
// transfers run concurrently.
func (c *cluster) gossip(rnd *rand.Rand) error {
	if len(c.replicas) < 2 {
		return nil
	}
	pairs := make([][2]*replica, len(c.replicas))
	for i, src := range c.replicas {
		j := rnd.Intn(len(c.replicas) - 1)
		if j >= i {
			j++
		}
		pairs[i] = [2]*replica{src, c.replicas[j]}
	}
	return c.exchange(pairs)
}

// sync makes every replica send its snapshot to every other replica.
// After sync all replicas report the same value when no events are recorded
// concurrently.
func (c *cluster) sync() error {
	var pairs [][2]*replica
	for _, src := range c.replicas {
		for _, dst := range c.replicas {
			if src != dst {
				pairs = append(pairs, [2]*replica{src, dst})
			}
		}
	}
	return c.exchange(pairs)
}

func (c *cluster) exchange(pairs [][2]*replica) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, pair := range pairs {
		wg.Add(1)
		go func(src, dst *replica) {
			defer wg.Done()
			if err := c.send(src, dst); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(pair[0], pair[1])
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (c *cluster) send(src, dst *replica) error {
	p, err := json.Marshal(src.counter)
	if err != nil {
		return fmt.Errorf("encode snapshot of %s: %w", src.id, err)
	}
	var remote crdt.PNCounter
	if err := json.Unmarshal(p, &remote); err != nil {
		return fmt.Errorf("decode snapshot of %s: %w", src.id, err)
	}
	dst.counter.Merge(&remote)

	c.log.Debug("snapshot merged",
		slog.String("from", src.id),
		slog.String("to", dst.id),
		slog.Int("bytes", len(p)),
	)
	return nil
}

// values returns current counter value of every replica.
func (c *cluster) values() map[string]int64 {
	ret := make(map[string]int64, len(c.replicas))
	for _, r := range c.replicas {
		ret[r.id] = r.counter.Value()
	}
	return ret
}

// converged reports whether all replicas report the expected value.
func (c *cluster) converged() bool {
	for _, v := range c.values() {
		if v != c.expected {
			return false
		}
	}
	return true
}
