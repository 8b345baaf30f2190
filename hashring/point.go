package hashring

import (
	"strings"

	"github.com/gobwas/avl"
)

// point represents a virtual point of a node on the ring.
// To handle collisions properly it may change its value to another one,
// increasing its generation by one.
type point struct {
	// bucket is a bucket where point belongs to.
	bucket *bucket

	// index is a constant index of the point within bucket.
	index int

	// val is a current value of the point.
	// It might be changed if point collides with another one.
	val uint64

	// stack holds a history of point values.
	// It's non-nil only if point collides with another one.
	stack []uint64
}

func newPoint(b *bucket, i int, v uint64) *point {
	return &point{
		bucket: b,
		index:  i,
		val:    v,
	}
}

func (p *point) generation() int {
	return len(p.stack)
}

func (p *point) proceed(v uint64) {
	p.stack = append(p.stack, p.val)
	p.val = v
}

func (p *point) rewind() {
	n := len(p.stack)
	p.val = p.stack[n-1]
	p.stack = p.stack[:n-1]
}

func (p *point) value() uint64 {
	return p.val
}

// slot returns current position of the point on the ring.
func (p *point) slot() slot {
	return slot{
		val:   p.val,
		point: p,
	}
}

// slot is an item of the ring tree. Unlike point it never changes, so readers
// can search old versions of the tree while points are being moved.
type slot struct {
	val   uint64
	point *point
}

func (s slot) Compare(x avl.Item) int {
	return compare(s.val, itemValue(x))
}

// bucket holds points of a single node.
type bucket struct {
	node   string
	points []*point

	// replicas is the number of points the bucket is expected to have.
	// It is zero for the bucket being removed from the ring.
	replicas int
}

func newBucket(node string, replicas int) *bucket {
	return &bucket{
		node:     node,
		replicas: replicas,
	}
}

func (b *bucket) removed() bool {
	return b.replicas == 0
}

// collision is a point stored in a tree of points sharing the same value in
// one of their generations. Such trees are ordered by node and index, which
// makes collision resolution independent of insertion order.
type collision struct {
	*point
}

func (c collision) Compare(x avl.Item) int {
	p0 := c.point
	p1 := x.(collision).point
	if x := strings.Compare(p0.bucket.node, p1.bucket.node); x != 0 {
		return x
	}
	return p0.index - p1.index
}

// search is used to look up points by hash value.
type search uint64

func (s search) Compare(x avl.Item) int {
	return compare(uint64(s), itemValue(x))
}

// member is an item of the tree holding the names of nodes on the ring.
type member string

func (m member) Compare(x avl.Item) int {
	return strings.Compare(string(m), string(x.(member)))
}

func itemValue(x avl.Item) uint64 {
	switch v := x.(type) {
	case slot:
		return v.val
	case search:
		return uint64(v)
	}
	panic("hashring: internal error: unexpected item type")
}

func compare(x0, x1 uint64) int {
	if x0 < x1 {
		return -1
	}
	if x0 > x1 {
		return 1
	}
	return 0
}
