// Command dist measures distribution of keys across ring nodes for a range of
// replication factors.
package main

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"hash"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gobwas/avl"
	"github.com/spf13/cobra"

	"github.com/gobwas/convergent/hashring"
)

type config struct {
	parallelism int    // Number of goroutines.
	objects     int    // Number of keys.
	servers     int    // Number of nodes on the ring.
	lo          int    // Min replication factor.
	hi          int    // Max replication factor.
	factors     string // Comma-separated factors list.
	hashFunc    string // Optional hash function name.
	csv         bool
	verbose     bool
	silent      bool
}

func main() {
	var c config
	cmd := &cobra.Command{
		Use:   "dist",
		Short: "Measure key distribution of the hashring",
		Long: `Dist places random servers on a ring for every given replication factor,
spreads random keys across them and reports standard deviation of keys per
server, maximum deviation from the mean and the share of keys relocated when
one server leaves the ring.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(c)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&c.parallelism, "parallelism", "p", runtime.NumCPU(), "number of concurrent processors")
	f.IntVarP(&c.objects, "objects", "n", 1e6, "number of keys to spread on ring")
	f.IntVar(&c.servers, "servers", 10, "number of servers to place on ring")
	f.IntVar(&c.lo, "lo", 0, "replication factor to start from")
	f.IntVar(&c.hi, "hi", 0, "replication factor to end at")
	f.StringVar(&c.factors, "factors", "", "comma-separated list of replication factors")
	f.StringVar(&c.hashFunc, "hash", "", "custom hash function to be used (md5)")
	f.BoolVar(&c.csv, "csv", true, "print csv to standard output")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "be verbose")
	f.BoolVarP(&c.silent, "silent", "s", false, "be silent")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c config) error {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	printf := func(f string, args ...interface{}) {
		if c.silent {
			return
		}
		fmt.Fprintf(os.Stderr, f, args...)
	}

	if c.servers < 2 {
		return fmt.Errorf("at least two servers are needed, got %d", c.servers)
	}
	var newHash func() hash.Hash64
	switch c.hashFunc {
	case "":
	case "md5":
		newHash = func() hash.Hash64 {
			return newHash64(md5.New())
		}
	default:
		return fmt.Errorf("unexpected hash function: %q", c.hashFunc)
	}

	// Prepare servers to be put on ring(s).
	servers := make([]string, c.servers)
	seenSrv := make(map[string]bool)
	for i := 0; i < c.servers; {
		var b [4]byte
		rand.Read(b[:])
		s := net.IPv4(b[0], b[1], b[2], b[3]).String()
		if seenSrv[s] {
			log.Debug("server duplicated; repeat", "index", i)
			continue
		}
		seenSrv[s] = true
		servers[i] = s
		i++
	}
	log.Debug("servers are ready", "count", len(servers))

	// Prepare keys to be spread across servers on ring(s).
	objects := make([]string, c.objects)
	seenObj := make(map[string]bool)
	for i := 0; i < c.objects; {
		s := fmt.Sprintf("%016x", rand.Int63n(math.MaxInt64))
		if seenObj[s] {
			log.Debug("key duplicated; repeat", "index", i)
			continue
		}
		seenObj[s] = true
		objects[i] = s
		i++
	}
	log.Debug("keys are ready", "count", len(objects))

	// Prepare list of factors. We merge here factors range (from `lo` to
	// `hi`) with manually specified factors.
	// We use tree to autofix duplicates (if any).
	var factors avl.Tree
	for _, s := range strings.Split(c.factors, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("bad factor %q: %w", s, err)
		}
		if f <= 0 {
			return fmt.Errorf("factor must be positive: %d", f)
		}
		factors, _ = factors.Insert(factor(f))
	}
	for f := c.lo; f < c.hi; f++ {
		if f > 0 {
			factors, _ = factors.Insert(factor(f))
		}
	}
	if factors.Size() == 0 {
		return fmt.Errorf("no replication factors given")
	}
	log.Debug("factors are ready", "count", factors.Size())

	mean := float64(c.objects) / float64(c.servers)

	var (
		work    = make(chan int)
		stop    = make(chan struct{})
		done    = make(chan struct{}, c.parallelism)
		results = make(chan result, 1)
	)
	for i := 0; i < c.parallelism; i++ {
		go func() {
			defer func() {
				done <- struct{}{}
			}()
			distribution := make(map[string]int, len(servers))
			owners := make([]string, len(objects))
			for {
				var f int
				select {
				case <-stop:
					return
				case f = <-work:
					// Process below.
				}

				r := hashring.Ring{
					Replicas: f,
					Hash:     newHash,
				}

				start := time.Now()
				for _, s := range servers {
					r.AddNode(s)
				}
				latency := time.Since(start)

				for i, obj := range objects {
					s, ok := r.GetNode(obj)
					if !ok {
						panic("empty ring")
					}
					owners[i] = s
					distribution[s]++
				}
				var (
					variance float64
					maxDiff  int
				)
				for key, d := range distribution {
					variance += math.Pow(float64(d)-mean, 2)
					if diff := int(math.Abs(float64(d) - mean)); diff > maxDiff {
						maxDiff = diff
					}
					distribution[key] = 0
				}
				// Divide by number of servers as for mean.
				variance /= float64(len(servers))

				// Count keys changing owner when the first server leaves.
				r.RemoveNode(servers[0])
				var moved int
				for i, obj := range objects {
					if s, _ := r.GetNode(obj); s != owners[i] {
						moved++
					}
				}

				results <- result{
					f:       f,
					latency: latency,
					stddev:  math.Sqrt(variance),
					maxDiff: maxDiff,
					moved:   moved,
				}
			}
		}()
	}

	go func() {
		// InOrder walks the whole tree regardless of the callback result.
		factors.InOrder(func(x avl.Item) bool {
			work <- int(x.(factor))
			return true
		})
		close(stop)
		for i := 0; i < c.parallelism; i++ {
			<-done
		}
		close(results)
	}()

	var t avl.Tree
	for r := range results {
		t, _ = t.Insert(r)
		printf(".")
		if n := t.Size(); n%80 == 0 {
			f := factors.Size()
			printf(
				"%d/%d(%.1f%%)\n",
				n, f,
				float64(n)/float64(f)*100, // Progress percentage.
			)
		}
	}
	printf("\n")

	n := float64(c.objects)
	tw := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	t.InOrder(func(x avl.Item) bool {
		r := x.(result)
		var (
			devPct   = r.stddev / n * 100
			diffPct  = float64(r.maxDiff) / n * 100
			movedPct = float64(r.moved) / n * 100
		)
		log.Debug("factor measured",
			"factor", r.f,
			"stddev", r.stddev,
			"stddev_pct", devPct,
			"max_diff", r.maxDiff,
			"max_diff_pct", diffPct,
			"moved_pct", movedPct,
			"latency", r.latency,
		)
		if c.csv {
			fmt.Fprintf(tw,
				"%d,\t%.4f,\t%.4f,\t%.4f,\t%.2f\n",
				r.f, devPct, diffPct, movedPct,
				r.latency.Seconds()*1000,
			)
		}
		return true
	})
	tw.Flush()

	printf("OK\n")
	return nil
}

type result struct {
	f       int
	latency time.Duration
	stddev  float64
	maxDiff int
	moved   int
}

func (r result) Compare(x avl.Item) int {
	return r.f - x.(result).f
}

type factor int

func (f factor) Compare(x avl.Item) int {
	return int(f - x.(factor))
}

type hash64 struct {
	hash.Hash
}

func newHash64(h hash.Hash) hash.Hash64 {
	return &hash64{Hash: h}
}

func (h *hash64) Sum64() uint64 {
	if h.Size() < 8 {
		panic("too small hash")
	}
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}
