package hashring

import (
	"fmt"
	"hash"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// pointName returns the name hashed to get the value of i-th point of the
// node at the given generation. Zeroth generation is "node-i".
func pointName(node string, i, gen int) string {
	s := node + "-" + strconv.Itoa(i)
	if gen > 0 {
		s += "#" + strconv.Itoa(gen)
	}
	return s
}

func (r *Ring) digest(s string) uint64 {
	h, _ := r.hashPool.Get().(hash.Hash64)
	if h == nil {
		if r.Hash != nil {
			h = r.Hash()
		} else {
			h = xxhash.New()
		}
	}
	defer func() {
		h.Reset()
		r.hashPool.Put(h)
	}()

	if _, err := io.WriteString(h, s); err != nil {
		panic(fmt.Sprintf("hashring: digest error: %v", err))
	}
	return h.Sum64()
}
