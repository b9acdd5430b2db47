package chain

import (
	"context"
	"sort"
	"sync"
)

type recorderKey struct{}

// Recorder collects named numeric observations made by steps during a run.
type Recorder struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewRecorder() *Recorder {
	return &Recorder{values: make(map[string]float64)}
}

func (r *Recorder) Set(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
}

// Snapshot returns a copy of everything recorded so far.
func (r *Recorder) Snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]float64, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// Record stores a metric on the recorder in ctx. It is a no-op without one.
func Record(ctx context.Context, name string, value float64) {
	if r := RecorderFrom(ctx); r != nil {
		r.Set(name, value)
	}
}
