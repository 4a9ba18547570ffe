// Package statsd wraps the statsd client used to report world metrics. It hides the datadog
// dependency so the rest of the module only deals with storage.Metrics.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/argus-labs/stash/pkg/storage"
)

const namespace = "stash"

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{} //nolint:gochecknoglobals // swapped by Init

func Client() ddstatsd.ClientInterface {
	return client
}

// Init replaces the no-op client with one that sends to address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace(namespace),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}

// Close flushes and closes the current client and restores the no-op client.
func Close() error {
	err := client.Close()
	client = &ddstatsd.NoOpClient{}
	if err != nil {
		return eris.Wrap(err, "failed to close statsd client")
	}
	return nil
}

// EmitCommitStat reports the duration of one commit.
func EmitCommitStat(start time.Time) {
	if err := Client().Timing("commit", time.Since(start), nil, 1); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to emit commit stat")
	}
}

// EmitWorldStats reports counter deltas since prev and the current gauges of m.
func EmitWorldStats(prev, m storage.Metrics, tags []string) {
	counts := []struct {
		name  string
		value uint64
	}{
		{"commits", m.Commits - prev.Commits},
		{"migrations", m.Migrations - prev.Migrations},
		{"stash_resizes", m.StashResizes - prev.StashResizes},
		{"archetypes_created", m.ArchetypesCreated - prev.ArchetypesCreated},
		{"archetypes_reclaimed", m.ArchetypesReclaimed - prev.ArchetypesReclaimed},
	}
	for _, c := range counts {
		if err := Client().Count(c.name, int64(c.value), tags, 1); err != nil { //nolint:gosec // it's ok
			log.Logger.Warn().Err(err).Str("metric", c.name).Msg("failed to emit count")
		}
	}

	gauges := []struct {
		name  string
		value int
	}{
		{"entities", m.Entities},
		{"archetypes", m.Archetypes},
		{"filters", m.Filters},
		{"stashes", m.Stashes},
		{"pooled_archetypes", m.Pooled},
	}
	for _, g := range gauges {
		if err := Client().Gauge(g.name, float64(g.value), tags, 1); err != nil {
			log.Logger.Warn().Err(err).Str("metric", g.name).Msg("failed to emit gauge")
		}
	}
}
