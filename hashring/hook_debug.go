//go:build hashring_debug

package hashring

import (
	"fmt"
	"log"
	"strings"

	"github.com/gobwas/avl"
)

func assertNotExists(tree avl.Tree, p *point) {
	if x := tree.Search(p.slot()); x != nil && x.(slot).point == p {
		// NOTE: x could be another point collided with p.
		panic(fmt.Sprintf(
			"hashring: internal error: point must not exist on the ring: %s",
			pointInfo(p),
		))
	}
}

func setupRingTrace(r *Ring) {
	var depth int
	prefix := func() string {
		return strings.Repeat(" ", depth*4)
	}
	enter := func() {
		depth++
	}
	leave := func() {
		depth--
	}
	r.trace = r.trace.Compose(traceRing{
		OnInsert: func(p *point) traceRingInsert {
			log.Println(prefix()+"inserting:", pointInfo(p))
			enter()
			return traceRingInsert{
				OnDone: func(inserted bool) {
					leave()
					if inserted {
						log.Println(prefix() + "inserted")
					} else {
						log.Println(prefix() + "not inserted")
					}
				},
				OnCollision: func(prev *point) {
					log.Println(prefix() + "collision:")
					enter()
					log.Println(prefix()+"prev:", pointInfo(prev))
					log.Println(prefix()+"next:", pointInfo(p))
					leave()
				},
			}
		},
		OnDelete: func(p *point) traceRingDelete {
			log.Println(prefix()+"deleting:", pointInfo(p))
			enter()
			return traceRingDelete{
				OnDone: func(deleted bool) {
					leave()
					if deleted {
						log.Println(prefix() + "deleted")
					} else {
						log.Println(prefix() + "not deleted")
					}
				},
				OnProcessing: func(p *point) func() {
					log.Println(prefix()+"processing:", pointInfo(p))
					enter()
					return func() {
						leave()
						log.Println(prefix() + "processed")
					}
				},
				OnTwinDelete: func(p *point) {
					log.Println(prefix()+"deleting twin", pointInfo(p))
				},
				OnTwinRestore: func(p *point) {
					log.Println(prefix()+"restoring twin", pointInfo(p))
				},
			}
		},
		OnFixNeeded: func(p *point) {
			log.Println(prefix()+"enqueued for fix:", pointInfo(p))
		},
		OnFix: func(p *point) traceRingFix {
			log.Println(prefix()+"fixing:", pointInfo(p))
			enter()
			return traceRingFix{
				OnDone: func() {
					leave()
					log.Println(prefix() + "fixed")
				},
			}
		},
	})
}

func pointInfo(p *point) string {
	return fmt.Sprintf(
		"%p: %s[%d] %v %d",
		p, p.bucket.node, p.index, p.stack, p.val,
	)
}
