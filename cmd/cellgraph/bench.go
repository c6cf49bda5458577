package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/reactive"
	"github.com/vango-dev/cellgraph/pkg/reconcile"
)

type benchProfile struct {
	Name     string
	Cells    int // derived cells fanned out from one source
	Flushes  int // writes, each followed by a flush
	ListSize int
	Rounds   int // reconcile rounds
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:     "fast",
		Cells:    1000,
		Flushes:  100,
		ListSize: 200,
		Rounds:   200,
	},
	"standard": {
		Name:     "standard",
		Cells:    10000,
		Flushes:  200,
		ListSize: 1000,
		Rounds:   500,
	},
	"stress": {
		Name:     "stress",
		Cells:    100000,
		Flushes:  200,
		ListSize: 10000,
		Rounds:   200,
	},
}

type benchResult struct {
	Name    string
	Count   int
	Elapsed time.Duration
	Detail  string
}

func (r benchResult) perOp() time.Duration {
	if r.Count == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Count)
}

func benchCmd(opts *rootOptions) *cobra.Command {
	var (
		profileName string
		cells       int
		listSize    int
		seed        uint64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time cell fan-out flushes and list reconciliation",
		Long: `Run in-process benchmarks of the scheduler and the reconciler.

Profiles: fast, standard, stress.

Examples:
  cellgraph bench
  cellgraph bench --profile=standard --cells=50000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := benchProfiles[profileName]
			if !ok {
				names := make([]string, 0, len(benchProfiles))
				for name := range benchProfiles {
					names = append(names, name)
				}
				sort.Strings(names)
				return errors.New("E161").
					WithDetail(fmt.Sprintf("Unknown profile %q.", profileName)).
					WithSuggestion("Use one of: " + strings.Join(names, ", "))
			}
			if cells > 0 {
				p.Cells = cells
			}
			if listSize > 0 {
				p.ListSize = listSize
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(cmd.ErrOrStderr())

			results, err := runBench(p, cfg.Scheduler.CycleLimit, seed, logger)
			if err != nil {
				return err
			}
			printBench(cmd.OutOrStdout(), p, results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "fast", "Benchmark profile")
	cmd.Flags().IntVar(&cells, "cells", 0, "Override the number of derived cells")
	cmd.Flags().IntVar(&listSize, "list", 0, "Override the reconciled list size")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed for list shuffles")

	return cmd
}

func runBench(p benchProfile, cycleLimit int, seed uint64, logger *slog.Logger) ([]benchResult, error) {
	fanOut, err := benchFanOut(p, cycleLimit, logger)
	if err != nil {
		return nil, err
	}
	fanIn, err := benchFanIn(p, cycleLimit, logger)
	if err != nil {
		return nil, err
	}
	rec, err := benchReconcile(p, seed)
	if err != nil {
		return nil, err
	}
	return []benchResult{fanOut, fanIn, rec}, nil
}

// benchFanOut writes one source cell observed through p.Cells derived cells.
func benchFanOut(p benchProfile, cycleLimit int, logger *slog.Logger) (benchResult, error) {
	loop := reactive.NewLoop()
	s := reactive.NewScheduler(
		reactive.WithPoster(loop),
		reactive.WithLogger(logger),
		reactive.WithCycleLimit(cycleLimit),
	)
	src := reactive.NewCell(s, 0)

	delivered := 0
	derived := make([]*reactive.Derived[int], p.Cells)
	for i := range derived {
		offset := i
		derived[i] = src.Computed(func(v int) int { return v + offset })
		derived[i].Subscribe(func(int) { delivered++ })
	}

	start := time.Now()
	for f := 1; f <= p.Flushes; f++ {
		src.Set(f)
		if err := loop.RunPending(); err != nil {
			return benchResult{}, err
		}
	}
	elapsed := time.Since(start)

	if want := p.Cells * p.Flushes; delivered != want {
		return benchResult{}, fmt.Errorf("fan-out delivered %d notifications, want %d", delivered, want)
	}
	return benchResult{
		Name:    "fan-out flush",
		Count:   p.Flushes,
		Elapsed: elapsed,
		Detail:  fmt.Sprintf("%d derived cells, %d notifications", p.Cells, delivered),
	}, nil
}

// benchFanIn writes every one of p.Cells sources before each flush and
// observes them with a single SubscribeMany.
func benchFanIn(p benchProfile, cycleLimit int, logger *slog.Logger) (benchResult, error) {
	loop := reactive.NewLoop()
	s := reactive.NewScheduler(
		reactive.WithPoster(loop),
		reactive.WithLogger(logger),
		reactive.WithCycleLimit(cycleLimit),
	)
	cells := make([]*reactive.Cell[int], p.Cells)
	sources := make([]reactive.ReadonlyCell[int], p.Cells)
	for i := range cells {
		cells[i] = reactive.NewCell(s, 0)
		sources[i] = cells[i]
	}
	calls := 0
	sub := reactive.SubscribeMany(s, sources, func([]int) { calls++ })
	defer sub.Unsubscribe()

	start := time.Now()
	for f := 1; f <= p.Flushes; f++ {
		for _, c := range cells {
			c.Set(f)
		}
		if err := loop.RunPending(); err != nil {
			return benchResult{}, err
		}
	}
	elapsed := time.Since(start)

	if calls != p.Flushes {
		return benchResult{}, fmt.Errorf("fan-in observer ran %d times, want %d", calls, p.Flushes)
	}
	return benchResult{
		Name:    "fan-in batch",
		Count:   p.Flushes,
		Elapsed: elapsed,
		Detail:  fmt.Sprintf("%d writes per flush, 1 call per flush", p.Cells),
	}, nil
}

// benchReconcile reconciles a list against p.Rounds random permutations of
// itself, with a tenth of the keys replaced each round.
func benchReconcile(p benchProfile, seed uint64) (benchResult, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	current := make([]string, p.ListSize)
	for i := range current {
		current[i] = fmt.Sprintf("k%d", i)
	}
	list := reconcile.NewList(current...)
	next := p.ListSize

	var total reconcile.Stats
	var elapsed time.Duration
	for r := 0; r < p.Rounds; r++ {
		target := slices.Clone(current)
		rng.Shuffle(len(target), func(i, j int) { target[i], target[j] = target[j], target[i] })
		for i := 0; i < len(target)/10; i++ {
			target[rng.IntN(len(target))] = fmt.Sprintf("k%d", next)
			next++
		}

		start := time.Now()
		stats, err := reconcile.Reconcile(list, current, target)
		elapsed += time.Since(start)
		if err != nil {
			return benchResult{}, err
		}
		total.Removed += stats.Removed
		total.Inserted += stats.Inserted
		total.Moved += stats.Moved
		total.Stable += stats.Stable
		total.Ops += stats.Ops
		current = target
	}

	return benchResult{
		Name:    "reconcile",
		Count:   p.Rounds,
		Elapsed: elapsed,
		Detail: fmt.Sprintf("%d items; avg moved=%d inserted=%d ops=%d",
			p.ListSize, total.Moved/max(p.Rounds, 1), total.Inserted/max(p.Rounds, 1), total.Ops/max(p.Rounds, 1)),
	}, nil
}

func printBench(w io.Writer, p benchProfile, results []benchResult) {
	fmt.Fprintf(w, "profile %s\n\n", p.Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BENCH\tN\tTOTAL\tPER OP\tDETAIL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			r.Name, r.Count, r.Elapsed.Round(time.Microsecond), r.perOp().Round(time.Nanosecond), r.Detail)
	}
	tw.Flush()
}
