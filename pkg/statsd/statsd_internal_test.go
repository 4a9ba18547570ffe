package statsd

import (
	"testing"
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/stash/pkg/storage"
)

type recorder struct {
	ddstatsd.NoOpClient
	counts  map[string]int64
	gauges  map[string]float64
	timings []string
}

func (r *recorder) Count(name string, value int64, _ []string, _ float64) error {
	r.counts[name] += value
	return nil
}

func (r *recorder) Gauge(name string, value float64, _ []string, _ float64) error {
	r.gauges[name] = value
	return nil
}

func (r *recorder) Timing(name string, _ time.Duration, _ []string, _ float64) error {
	r.timings = append(r.timings, name)
	return nil
}

// The tests below swap the package client, so they don't run in parallel.

func TestEmitWorldStats(t *testing.T) {
	rec := &recorder{counts: map[string]int64{}, gauges: map[string]float64{}}
	client = rec
	t.Cleanup(func() { client = &ddstatsd.NoOpClient{} })

	prev := storage.Metrics{Commits: 2, Migrations: 10}
	curr := storage.Metrics{Commits: 5, Migrations: 14, ArchetypesCreated: 3, Entities: 40, Filters: 2}
	EmitWorldStats(prev, curr, nil)

	assert.Equal(t, int64(3), rec.counts["commits"])
	assert.Equal(t, int64(4), rec.counts["migrations"])
	assert.Equal(t, int64(3), rec.counts["archetypes_created"])
	assert.Equal(t, int64(0), rec.counts["archetypes_reclaimed"])
	assert.InDelta(t, 40.0, rec.gauges["entities"], 1e-9)
	assert.InDelta(t, 2.0, rec.gauges["filters"], 1e-9)

	EmitCommitStat(time.Now())
	assert.Equal(t, []string{"commit"}, rec.timings)
}

func TestInit(t *testing.T) {
	require.Error(t, Init("", nil))

	require.NoError(t, Init("127.0.0.1:8125", []string{"env:test"}))
	_, isNoOp := Client().(*ddstatsd.NoOpClient)
	assert.False(t, isNoOp)

	require.NoError(t, Close())
	_, isNoOp = Client().(*ddstatsd.NoOpClient)
	assert.True(t, isNoOp)
}
