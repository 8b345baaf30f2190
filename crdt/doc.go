/*
Package crdt implements convergent replicated counters.

A GCounter is a grow-only counter: every replica increments only its own
entry and replicas exchange their full per-replica state. Merging takes the
maximum of every entry, which is commutative, associative and idempotent, so
replicas that have seen the same set of states report the same value no matter
in which order or how many times the states were merged.

A PNCounter supports decrements by tracking increments and decrements in two
independent GCounters; its value is their difference and may be negative.

Counters are safe for concurrent use and their zero values are ready to use.
Entries saturate at the bounds of their integer types instead of wrapping
around. States are transferred between replicas as JSON snapshots carrying
the whole per-replica breakdown:

	p, _ := json.Marshal(local)
	// ... send p to a peer ...
	var remote crdt.PNCounter
	_ = json.Unmarshal(p, &remote)
	peer.Merge(&remote)
*/
package crdt
