package timing

import (
	"sort"
	"sync"
	"time"
)

// StageStats summarizes every observed duration of one stage.
type StageStats struct {
	Stage   string
	Count   int
	Skipped int
	Total   time.Duration
	Max     time.Duration
}

func (s StageStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker aggregates stage durations across many chain runs.
type Tracker struct {
	stages map[string]*StageStats
	order  []string
	mu     sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{
		stages: make(map[string]*StageStats),
	}
}

// Observe records one execution of stage. Skipped executions only count.
func (tt *Tracker) Observe(stage string, duration time.Duration, skipped bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	stats, ok := tt.stages[stage]
	if !ok {
		stats = &StageStats{Stage: stage}
		tt.stages[stage] = stats
		tt.order = append(tt.order, stage)
	}

	if skipped {
		stats.Skipped++
		return
	}
	stats.Count++
	stats.Total += duration
	if duration > stats.Max {
		stats.Max = duration
	}
}

// Snapshot returns the stages in first-seen order.
func (tt *Tracker) Snapshot() []StageStats {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	result := make([]StageStats, 0, len(tt.order))
	for _, stage := range tt.order {
		result = append(result, *tt.stages[stage])
	}
	return result
}

// Slowest returns up to n of stats ordered by total time, largest first.
// A negative n keeps them all. stats is not modified.
func Slowest(stats []StageStats, n int) []StageStats {
	sorted := make([]StageStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total > sorted[j].Total
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
