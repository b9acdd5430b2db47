package timing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageNames(stats []StageStats) []string {
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = s.Stage
	}
	return out
}

func TestTrackerObserve(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe("grayscale", 2*time.Millisecond, false)
	tracker.Observe("darken", 0, true)
	tracker.Observe("grayscale", 4*time.Millisecond, false)

	stats := tracker.Snapshot()
	require.Len(t, stats, 2)

	gray := stats[0]
	assert.Equal(t, "grayscale", gray.Stage)
	assert.Equal(t, 2, gray.Count)
	assert.Equal(t, 6*time.Millisecond, gray.Total)
	assert.Equal(t, 4*time.Millisecond, gray.Max)
	assert.Equal(t, 3*time.Millisecond, gray.Average())

	darken := stats[1]
	assert.Equal(t, "darken", darken.Stage)
	assert.Equal(t, 0, darken.Count)
	assert.Equal(t, 1, darken.Skipped)
	assert.Equal(t, time.Duration(0), darken.Average())
}

func TestSlowest(t *testing.T) {
	tracker := NewTracker()
	tracker.Observe("a", time.Millisecond, false)
	tracker.Observe("b", 5*time.Millisecond, false)
	tracker.Observe("c", 3*time.Millisecond, false)

	stats := tracker.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, stageNames(stats))
	assert.Equal(t, []string{"b", "c"}, stageNames(Slowest(stats, 2)))
	assert.Equal(t, []string{"b", "c", "a"}, stageNames(Slowest(stats, -1)))
	assert.Equal(t, []string{"b", "c", "a"}, stageNames(Slowest(stats, 10)))
	assert.Equal(t, []string{"a", "b", "c"}, stageNames(stats), "input order kept")
	assert.Empty(t, Slowest(nil, 3))
}

func TestTrackerConcurrent(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Observe("stage", time.Microsecond, false)
			}
		}()
	}
	wg.Wait()

	stats := tracker.Snapshot()
	require.Len(t, stats, 1)
	assert.Equal(t, 800, stats[0].Count)
}
