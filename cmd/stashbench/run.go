package main

import (
	"context"
	"time"

	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/argus-labs/stash/pkg/performance"
	"github.com/argus-labs/stash/pkg/statsd"
	"github.com/argus-labs/stash/pkg/storage"
)

var (
	flagEntities  int
	flagCommits   int
	flagChurn     float64
	flagProfile   string
	flagStatsd    string
	flagBatchSize int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a churn workload and report commit timings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagChurn < 0 || flagChurn > 1 {
			return eris.New("churn must be between 0 and 1")
		}

		switch flagProfile {
		case "":
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		case "mem":
			defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
		default:
			return eris.Errorf("unknown profile mode %q (must be 'cpu' or 'mem')", flagProfile)
		}

		if flagStatsd != "" {
			if err := statsd.Init(flagStatsd, []string{"service:stashbench"}); err != nil {
				return err
			}
			defer statsd.Close() //nolint:errcheck // best effort on exit
		}

		return runWorkload(cmd.Context())
	},
}

func init() {
	runCmd.Flags().IntVar(&flagEntities, "entities", 10_000, "number of entities to create")
	runCmd.Flags().IntVar(&flagCommits, "commits", 100, "number of churn and commit cycles")
	runCmd.Flags().Float64Var(&flagChurn, "churn", 0.1, "fraction of entities changed per cycle")
	runCmd.Flags().StringVar(&flagProfile, "profile", "", "write a cpu or mem profile to the working directory")
	runCmd.Flags().StringVar(&flagStatsd, "statsd", "", "statsd address to report world metrics to")
	runCmd.Flags().IntVar(&flagBatchSize, "batch", 10, "commits per collector batch")
}

func runWorkload(ctx context.Context) error {
	log := logger("run")

	collector := performance.NewCollector(flagBatchSize)
	batches := collector.Subscribe()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportBatches(batches, stop)
	}()
	defer func() {
		collector.Unsubscribe(batches)
		close(stop)
		<-done
	}()

	w, err := storage.NewWorld(storage.WorldOptions{
		EntityCapacity: flagEntities,
		Tag:            flagTag,
		Logger:         logger("storage"),
		Tracer:         tel.Tracer,
		Collector:      collector,
	})
	if err != nil {
		return err
	}

	wl, err := newWorkload(w, flagSeed)
	if err != nil {
		return err
	}
	if err := wl.populate(flagEntities); err != nil {
		return eris.Wrap(err, "failed to populate world")
	}
	if err := w.CommitContext(ctx); err != nil {
		return err
	}

	prev := w.Metrics()
	moved := 0
	start := time.Now()
	for range flagCommits {
		if err := wl.churn(flagChurn); err != nil {
			return eris.Wrap(err, "failed to churn entities")
		}

		commitStart := time.Now()
		if err := w.CommitContext(ctx); err != nil {
			return err
		}
		statsd.EmitCommitStat(commitStart)

		n, err := wl.step()
		if err != nil {
			return eris.Wrap(err, "failed to step entities")
		}
		moved += n

		m := w.Metrics()
		statsd.EmitWorldStats(prev, m, nil)
		prev = m
	}
	elapsed := time.Since(start)

	commits, mean := collector.Summary()
	m := w.Metrics()
	log.Info().
		Int("cycles", flagCommits).
		Uint64("commits", commits).
		Dur("mean_commit", mean).
		Dur("elapsed", elapsed).
		Int("moved", moved).
		Int("entities", m.Entities).
		Int("archetypes", m.Archetypes).
		Uint64("migrations", m.Migrations).
		Uint64("archetypes_created", m.ArchetypesCreated).
		Uint64("archetypes_reclaimed", m.ArchetypesReclaimed).
		Msg("workload finished")

	return nil
}

// reportBatches logs the slowest phase of every batch until stop is closed.
func reportBatches(batches <-chan performance.Batch, stop <-chan struct{}) {
	log := logger("collector")
	for {
		select {
		case batch := <-batches:
			var slowest performance.PhaseSpan
			for _, commit := range batch.Commits {
				for _, span := range commit.Phases {
					if span.Duration() > slowest.Duration() {
						slowest = span
					}
				}
			}
			log.Debug().
				Int("commits", len(batch.Commits)).
				Str("slowest_phase", slowest.Phase).
				Int("slowest_items", slowest.Items).
				Dur("slowest_duration", slowest.Duration()).
				Uint64("dropped_spans", batch.DroppedSpans).
				Uint64("dropped_batches", batch.DroppedBatches).
				Msg("commit batch")
		case <-stop:
			return
		}
	}
}
