// Package performance records per-commit phase timings and broadcasts them to subscribers.
package performance

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	maxPhasesPerCommit = 8
	subscriberChanBuf  = 4
)

// PhaseSpan is the timing of a single commit phase.
type PhaseSpan struct {
	Phase     string
	Items     int // Entities or archetypes processed by the phase
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the time spent in the phase.
func (s PhaseSpan) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// CommitTimeline groups the phase spans of one commit.
type CommitTimeline struct {
	Commit      uint64
	CommitStart time.Time
	Phases      []PhaseSpan
}

// Batch is a batch of completed commit timelines pushed to subscribers.
type Batch struct {
	Commits        []CommitTimeline
	DroppedSpans   uint64 // Spans dropped during these commits (per-batch delta)
	DroppedBatches uint64 // Subscriber sends that failed since the last delivered batch
}

// Collector accumulates per-commit phase spans and broadcasts them in batches. It has a single
// writer (the goroutine that owns the world) and any number of concurrent subscribers.
type Collector struct {
	mu            sync.Mutex
	currentSpans  []PhaseSpan
	pending       []CommitTimeline
	subscribers   []chan Batch
	batchSize     int
	commitActive  bool
	droppedSpans  uint64 // guarded by mu
	totalCommits  uint64 // guarded by mu
	totalDuration time.Duration

	// droppedBatches is incremented outside mu during broadcast.
	droppedBatches atomic.Uint64
}

// NewCollector creates a Collector that flushes every batchSize commits.
func NewCollector(batchSize int) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		currentSpans: make([]PhaseSpan, 0, maxPhasesPerCommit),
		pending:      make([]CommitTimeline, 0, batchSize),
		batchSize:    batchSize,
	}
}

// StartCommit begins span collection for a new commit.
func (c *Collector) StartCommit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSpans = c.currentSpans[:0]
	c.commitActive = true
}

// RecordPhase appends a phase span to the current commit. Spans beyond the per-commit limit or
// outside a commit are dropped.
func (c *Collector) RecordPhase(span PhaseSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.commitActive {
		return
	}
	if len(c.currentSpans) >= maxPhasesPerCommit {
		c.droppedSpans++
		return
	}
	c.currentSpans = append(c.currentSpans, span)
}

// RecordCommit finalizes the current commit. When the pending batch reaches batchSize it is sent
// to every subscriber with a non-blocking send performed outside the lock.
func (c *Collector) RecordCommit(commit uint64, start time.Time) {
	c.mu.Lock()

	if !c.commitActive {
		c.mu.Unlock()
		return
	}
	c.commitActive = false
	c.totalCommits++
	c.totalDuration += time.Since(start)

	spans := make([]PhaseSpan, len(c.currentSpans))
	copy(spans, c.currentSpans)

	c.pending = append(c.pending, CommitTimeline{
		Commit:      commit,
		CommitStart: start,
		Phases:      spans,
	})

	var batch Batch
	var subs []chan Batch

	if len(c.pending) >= c.batchSize {
		batch = Batch{
			Commits:        c.pending,
			DroppedSpans:   c.droppedSpans,
			DroppedBatches: c.droppedBatches.Swap(0),
		}
		c.pending = make([]CommitTimeline, 0, c.batchSize)
		c.droppedSpans = 0

		subs = make([]chan Batch, len(c.subscribers))
		copy(subs, c.subscribers)
	}

	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- batch:
		default:
			c.droppedBatches.Add(1)
		}
	}
}

// Subscribe returns a channel that receives a Batch on every flush. The caller must eventually
// call Unsubscribe.
func (c *Collector) Subscribe() <-chan Batch {
	ch := make(chan Batch, subscriberChanBuf)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes the given channel from the subscriber list. The channel is not closed.
func (c *Collector) Unsubscribe(ch <-chan Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// Summary returns the number of recorded commits and their mean duration.
func (c *Collector) Summary() (commits uint64, mean time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.totalCommits == 0 {
		return 0, 0
	}
	return c.totalCommits, c.totalDuration / time.Duration(c.totalCommits) //nolint:gosec // it's ok
}

// Reset clears all buffered data and totals.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentSpans = c.currentSpans[:0]
	c.pending = c.pending[:0]
	c.commitActive = false
	c.droppedSpans = 0
	c.totalCommits = 0
	c.totalDuration = 0
	c.droppedBatches.Store(0)
}
