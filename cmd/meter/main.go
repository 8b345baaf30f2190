// Command meter simulates usage metering across replicas.
//
// Events of random tenants are routed to owner replicas with a hashring and
// counted in PN-counters. Replicas gossip counter snapshots to each other and
// must converge to the exact total of all recorded events.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gobwas/convergent/crdt"
)

type config struct {
	replicas int
	vnodes   int
	events   int
	tenants  int
	rounds   int
	drop     bool
	seed     int64
	verbose  bool
}

func main() {
	var c config
	cmd := &cobra.Command{
		Use:   "meter",
		Short: "Simulate usage metering with replicated counters",
		Long: `Meter starts a number of replicas placed on a consistent hashing ring.
Every round a batch of metering events is routed to the replicas owning the
event keys, and each replica gossips its counter snapshot to a random peer.
In the end all replicas exchange snapshots and must report the same total.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(c)
		},
	}
	f := cmd.Flags()
	f.IntVar(&c.replicas, "replicas", 5, "number of replicas")
	f.IntVar(&c.vnodes, "vnodes", 8, "number of virtual nodes per replica")
	f.IntVar(&c.events, "events", 10000, "number of events to record")
	f.IntVar(&c.tenants, "tenants", 100, "number of distinct tenant keys")
	f.IntVar(&c.rounds, "rounds", 10, "number of gossip rounds")
	f.BoolVar(&c.drop, "drop", false, "remove one replica from the ring halfway")
	f.Int64Var(&c.seed, "seed", 0, "random seed (0 means current time)")
	f.BoolVarP(&c.verbose, "verbose", "v", false, "be verbose")

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

	switch {
	case c.replicas < 1:
		return fmt.Errorf("at least one replica is needed, got %d", c.replicas)
	case c.drop && c.replicas < 2:
		return fmt.Errorf("can't drop the only replica")
	case c.rounds < 1:
		return fmt.Errorf("at least one round is needed, got %d", c.rounds)
	case c.tenants < 1:
		return fmt.Errorf("at least one tenant is needed, got %d", c.tenants)
	}
	seed := c.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rnd := rand.New(rand.NewSource(seed))
	log.Info("starting simulation",
		slog.Int("replicas", c.replicas),
		slog.Int("events", c.events),
		slog.Int("rounds", c.rounds),
		slog.Int64("seed", seed),
	)

	ids := make([]string, c.replicas)
	for i := range ids {
		ids[i] = crdt.NewReplicaID()
	}
	cl := newCluster(ids, c.vnodes, log)

	var (
		perRound = c.events / c.rounds
		routed   = make(map[string]int, len(ids))
	)
	for round := 0; round < c.rounds; round++ {
		if c.drop && round == c.rounds/2 {
			cl.leave(ids[0])
			log.Info("replica left the ring", slog.String("id", ids[0]))
		}
		n := perRound
		if round == c.rounds-1 {
			n = c.events - perRound*(c.rounds-1)
		}
		for i := 0; i < n; i++ {
			key := "tenant-" + strconv.Itoa(rnd.Intn(c.tenants))
			delta := int64(1)
			if rnd.Intn(10) == 0 {
				// Refund.
				delta = -1
			}
			id, err := cl.record(key, delta)
			if err != nil {
				return err
			}
			routed[id]++
		}
		if err := cl.gossip(rnd); err != nil {
			return fmt.Errorf("gossip round %d: %w", round, err)
		}
		log.Debug("round completed",
			slog.Int("round", round),
			slog.Bool("converged", cl.converged()),
		)
	}
	if err := cl.sync(); err != nil {
		return fmt.Errorf("final sync: %w", err)
	}

	values := cl.values()
	sort.Strings(ids)
	tw := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "replica\tevents\tlocal\tvalue\n")
	for _, id := range ids {
		r := cl.byID[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n",
			id, routed[id], r.counter.LocalValue(), values[id],
		)
	}
	tw.Flush()

	if !cl.converged() {
		return fmt.Errorf("replicas did not converge to %d: %v", cl.expected, values)
	}
	log.Info("replicas converged", slog.Int64("value", cl.expected))
	return nil
}
