package hashring

import (
	"container/list"
	"hash"
	"log/slog"
	"sync"

	"github.com/gobwas/avl"
)

// DefaultReplicas is the number of virtual points per node used when
// Ring.Replicas is not set.
const DefaultReplicas = 128

// Ring is a consistent hashing hashring.
// It is goroutine safe. Ring instances must not be copied.
// The zero value for Ring is an empty ring ready to use.
//
// Exported fields must not be changed after first call to AddNode().
type Ring struct {
	// Replicas is an optional number of "virtual" points on the ring per
	// node. The higher this number, the more equal distribution of keys
	// this ring produces and the more time is needed to update the ring.
	//
	// If Replicas is zero, then the DefaultReplicas is used.
	Replicas int

	// Hash is an optional function used to build up a new 64-bit hash function
	// for further hash values calculation. If Hash is nil, xxhash is used.
	Hash func() hash.Hash64

	// Logger is an optional logger receiving debug records about membership
	// changes and point collisions.
	Logger *slog.Logger

	// hashPool is a pool of reusable hash functions.
	hashPool sync.Pool

	// once protects trace setup.
	once sync.Once

	// mu serializes write-only operations on the ring.
	// It should be held when doing add/remove operations, which in turn lead
	// to ring rebuild.
	mu sync.Mutex

	// buckets is a mapping of node name to a bucket.
	// It is protected by r.mu mutex.
	buckets map[string]*bucket

	// collisions is a mapping of collided point value to a tree of all points
	// having same value in their generations.
	// It is protected by r.mu mutex.
	collisions map[uint64]avl.Tree // tree<collision>

	// fix is a list of points required to be fixed.
	// It's filled only during ring mutation and drained in the end of it.
	// It is protected by r.mu mutex.
	fix list.List // list<*point>

	// ringMu serializes read & write operations on the trees below.
	// It's read-end should be held when reading the tree pointers.
	// It's write-end should be held when tree pointers are being updated.
	ringMu sync.RWMutex

	// ring is a tree holding bucket points.
	// It's protected by r.mu and r.ringMu mutex.
	// Note that r.mu mutex should be held while preparing new (mutated)
	// version of the tree.
	ring avl.Tree // tree<slot>

	// members is a tree holding names of nodes on the ring.
	// It's protected by r.mu and r.ringMu mutex.
	members avl.Tree // tree<member>

	trace traceRing
}

// New creates an empty ring placing given number of virtual points per node.
func New(replicas int) *Ring {
	return &Ring{
		Replicas: replicas,
	}
}

// AddNode puts node onto the ring.
// It returns false when node already exists on the ring.
func (r *Ring) AddNode(node string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.init()
	if _, has := r.buckets[node]; has {
		return false
	}
	if r.buckets == nil {
		r.buckets = make(map[string]*bucket)
	}
	b := newBucket(node, r.replicas())
	r.buckets[node] = b
	r.rebuild(b)

	if r.Logger != nil {
		r.Logger.Debug("hashring: node added",
			slog.String("node", node),
			slog.Int("points", len(b.points)),
		)
	}
	return true
}

// RemoveNode removes node from the ring.
// It returns false when node doesn't exist on the ring.
func (r *Ring) RemoveNode(node string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.init()
	b, has := r.buckets[node]
	if !has {
		return false
	}
	b.replicas = 0
	r.rebuild(b)
	delete(r.buckets, node)

	if r.Logger != nil {
		r.Logger.Debug("hashring: node removed",
			slog.String("node", node),
		)
	}
	return true
}

// GetNode returns the node owning the given key.
// It returns false only when ring is empty.
func (r *Ring) GetNode(key string) (string, bool) {
	d := r.digest(key)

	root, _ := r.snapshot()
	s, ok := lookup(root, d)
	if !ok {
		return "", false
	}
	return s.point.bucket.node, true
}

// PreferenceList returns at most n distinct nodes met when walking the ring
// clockwise from the key position. The first node is the one returned by
// GetNode().
func (r *Ring) PreferenceList(key string, n int) []string {
	if n <= 0 {
		return nil
	}
	d := r.digest(key)

	root, members := r.snapshot()
	if m := members.Size(); n > m {
		n = m
	}
	s, ok := lookup(root, d)
	if !ok || n == 0 {
		return nil
	}
	var (
		ret  = make([]string, 0, n)
		seen = make(map[string]bool, n)
	)
	// Every slot is visited at most once.
	for i, size := 0, root.Size(); i < size; i++ {
		node := s.point.bucket.node
		if !seen[node] {
			seen[node] = true
			ret = append(ret, node)
			if len(ret) == n {
				break
			}
		}
		// Slot values are unique. Overflow of s.val+1 wraps to the minimum
		// slot as lookup does.
		s, _ = lookup(root, s.val+1)
	}
	return ret
}

// Has reports whether node exists on the ring.
func (r *Ring) Has(node string) bool {
	_, members := r.snapshot()
	return members.Search(member(node)) != nil
}

// Size returns number of nodes on the ring.
func (r *Ring) Size() int {
	_, members := r.snapshot()
	return members.Size()
}

// Nodes returns sorted names of nodes on the ring.
func (r *Ring) Nodes() []string {
	_, members := r.snapshot()
	ret := make([]string, 0, members.Size())
	members.InOrder(func(x avl.Item) bool {
		ret = append(ret, string(x.(member)))
		return true
	})
	return ret
}

func (r *Ring) snapshot() (ring, members avl.Tree) {
	r.ringMu.RLock()
	defer r.ringMu.RUnlock()
	return r.ring, r.members
}

// lookup returns the first slot with value greater or equal to v, wrapping
// around to the minimum slot.
func lookup(tree avl.Tree, v uint64) (slot, bool) {
	x := tree.Search(search(v))
	if x == nil {
		x = tree.Successor(search(v))
	}
	if x == nil {
		x = tree.Min()
	}
	if x == nil {
		return slot{}, false
	}
	return x.(slot), true
}

// r.mu must be held.
func (r *Ring) init() {
	r.once.Do(func() {
		if r.Logger != nil {
			r.trace = r.trace.Compose(logTrace(r.Logger))
		}
		setupRingTrace(r)
	})
}

func (r *Ring) replicas() int {
	if n := r.Replicas; n > 0 {
		return n
	}
	return DefaultReplicas
}

// r.mu must be held.
func (r *Ring) insertPoint(tree avl.Tree, p *point) (_ avl.Tree, inserted bool) {
	trace := r.trace.onInsert(p)
	defer func() {
		trace.onDone(inserted)
	}()

	if c := r.collisions[p.value()]; c.Size() != 0 {
		r.trace.onFixNeeded(p)
		r.collisions[p.value()] = mustInsertTree(c, collision{p})
		r.fix.PushBack(p)
		return tree, false
	}
	tree, existing := tree.Insert(p.slot())
	if existing == nil {
		return tree, true
	}
	d := existing.(slot).point
	trace.onCollision(d)
	// Collision detected.
	tree, existed := tree.Delete(d.slot())
	if existed == nil {
		panic("hashring: internal error: collided point is missing")
	}

	if r.collisions == nil {
		r.collisions = make(map[uint64]avl.Tree)
	}
	c := r.collisions[p.value()]
	c = mustInsertTree(c, collision{p})
	c = mustInsertTree(c, collision{d})
	r.collisions[p.value()] = c

	assertNotExists(tree, d)
	assertNotExists(tree, p)
	r.fix.PushBack(d)
	r.fix.PushBack(p)
	r.trace.onFixNeeded(d)
	r.trace.onFixNeeded(p)

	return tree, false
}

// r.mu must be held.
func (r *Ring) deletePoint(tree avl.Tree, p *point) (_ avl.Tree, removed bool) {
	trace := r.trace.onDelete(p)
	defer func() {
		trace.onDone(removed)
	}()

	tree, removed = deleteExact(tree, p)
	if !removed {
		return tree, false
	}
	var (
		toDelete list.List
		toInsert list.List
	)
	for {
		done := trace.onProcessing(p)
		for p.generation() > 0 {
			// Rollback one generation back.
			p.rewind()

			c, has := r.collisions[p.value()]
			if !has {
				// We are processing twin here, and collisions were removed
				// already.
				continue
			}
			c, existed := c.Delete(collision{p})
			if existed == nil {
				continue
			}
			if c.Size() > 1 {
				// There are more than one twins remaining, so don't cleanup
				// them yet.
				r.collisions[p.value()] = c
				continue
			}
			delete(r.collisions, p.value())
			if c.Size() == 0 {
				continue
			}

			twin := c.Min().(collision).point
			trace.onTwinDelete(twin)
			// Delete twin from the ring, but defer its cleanup.
			var deleted bool
			tree, deleted = deleteExact(tree, twin)
			if deleted {
				// We have to first cleanup all collisions of current point, so
				// enqueue twins in the queue to delete later.
				toDelete.PushBack(twin)
				toInsert.PushBack(twin)
			}
		}
		done()
		if toDelete.Len() == 0 {
			break
		}
		p = toDelete.Remove(toDelete.Front()).(*point)
	}
	// Insert back twins removed above (they can collide as well).
	for el := toInsert.Front(); el != nil; el = toInsert.Front() {
		p := toInsert.Remove(el).(*point)
		if p.bucket.removed() {
			// Twin belongs to the node leaving the ring.
			continue
		}
		trace.onTwinRestore(p)
		tree, _ = r.insertPoint(tree, p)
	}

	return tree, true
}

// rebuild brings number of points of bucket b to b.replicas and publishes new
// version of the ring.
//
// r.mu must be held.
func (r *Ring) rebuild(b *bucket) {
	root, members := r.snapshot()

	for i := len(b.points); i > b.replicas; i-- {
		p := b.points[i-1]
		b.points = b.points[:i-1]
		root, _ = r.deletePoint(root, p)
	}
	for i := len(b.points); i < b.replicas; i++ {
		v := r.digest(pointName(b.node, i, 0))
		p := newPoint(b, i, v)
		b.points = append(b.points, p)
		root, _ = r.insertPoint(root, p)
	}
	for el := r.fix.Front(); el != nil; el = r.fix.Front() {
		p := r.fix.Remove(el).(*point)
		if p.bucket.removed() {
			continue
		}

		trace := r.trace.onFix(p)
		assertNotExists(root, p)

		g := p.generation()
		v := r.digest(pointName(p.bucket.node, p.index, g+1))
		p.proceed(v)
		root, _ = r.insertPoint(root, p)

		trace.onDone()
	}
	if b.removed() {
		members, _ = members.Delete(member(b.node))
	} else {
		members, _ = members.Insert(member(b.node))
	}

	r.ringMu.Lock()
	r.ring = root
	r.members = members
	r.ringMu.Unlock()
}

// deleteExact deletes p from the tree only if p is the point stored there.
// Collided points share values, so the tree may hold another point at p's
// current value.
func deleteExact(tree avl.Tree, p *point) (avl.Tree, bool) {
	x := tree.Search(p.slot())
	if x == nil || x.(slot).point != p {
		return tree, false
	}
	tree, _ = tree.Delete(p.slot())
	return tree, true
}

func mustInsertTree(tree avl.Tree, x avl.Item) avl.Tree {
	tree, existing := tree.Insert(x)
	if existing != nil {
		panic("hashring: internal error: mustInsert failed")
	}
	return tree
}
