package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rotoscope/internal/logger"
	"rotoscope/internal/models"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/filters"
	"rotoscope/internal/processing/methods"
	"rotoscope/internal/segmentation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type halfSegmenter struct {
	closed bool
}

func (h *halfSegmenter) Segment(ctx context.Context, frame *safe.Mat) (*segmentation.ConfidenceMask, error) {
	w, ht := frame.Cols(), frame.Rows()
	values := make([]float32, w*ht)
	for y := 0; y < ht; y++ {
		for x := 0; x < w/2; x++ {
			values[y*w+x] = 0.9
		}
	}
	return segmentation.NewConfidenceMask(w, ht, values)
}

func (h *halfSegmenter) Close() error {
	h.closed = true
	return nil
}

// blockingStep holds the chain until its context is cancelled.
type blockingStep struct {
	started chan struct{}
}

func (b *blockingStep) Name() string                         { return "block" }
func (b *blockingStep) ShouldExecute(processing.Params) bool { return true }

func (b *blockingStep) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func frame(t *testing.T) *safe.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 150, 90, 0), 24, 32, gocv.MatTypeCV8UC3)
	mat, err := safe.Wrap(m)
	require.NoError(t, err)
	t.Cleanup(mat.Close)
	return mat
}

func newService(repo *models.ProcessingStateRepository) *ProcessingService {
	return NewProcessingService(nil, nil, repo, logger.Nop(), Options{Workers: 2, FeatherRadius: 1})
}

func TestProcessSketch(t *testing.T) {
	svc := newService(nil)

	var events []chain.Progress
	result, err := svc.Process(context.Background(), frame(t), "sketch", processing.DefaultParams(), func(p chain.Progress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	defer result.Close()

	assert.Equal(t, "sketch", result.Method)
	assert.Equal(t, processing.DefaultParams(), result.Params)
	assert.Equal(t, 3, result.Output.Channels())
	require.Len(t, result.Stages, 4)
	assert.Equal(t, "grayscale", result.Stages[0].Stage)
	assert.Len(t, events, 4)

	state := svc.State()
	assert.False(t, state.IsActive)
	assert.Equal(t, "Complete", state.CurrentStage)
}

func TestProcessRecordsMetrics(t *testing.T) {
	svc := newService(nil)
	result, err := svc.Process(context.Background(), frame(t), "regions", processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer result.Close()

	_, ok := result.Metrics[filters.MetricRegions]
	assert.True(t, ok)
}

func TestProcessRejectsBadRequests(t *testing.T) {
	svc := newService(nil)
	input := frame(t)

	_, err := svc.Process(context.Background(), input, "oil-paint", processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = svc.Process(context.Background(), input, "sketch", processing.Params{Size: 3, Depth: 42}, nil)
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = svc.Process(context.Background(), nil, "sketch", processing.DefaultParams(), nil)
	assert.Error(t, err)

	assert.False(t, svc.State().IsActive)
}

func TestRotoscopeRequiresSegmenter(t *testing.T) {
	svc := newService(nil)
	_, err := svc.Process(context.Background(), frame(t), "rotoscope", processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrSegmenterUnavailable)
}

func TestRotoscopeWithSegmenter(t *testing.T) {
	svc := newService(nil)
	seg := &halfSegmenter{}
	svc.SetSegmenter(seg)
	assert.True(t, svc.HasSegmenter())

	result, err := svc.Process(context.Background(), frame(t), "rotoscope", processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer result.Close()

	assert.InDelta(t, 0.5, result.Metrics[filters.MetricForegroundCoverage], 0.05)

	svc.Shutdown()
	assert.True(t, seg.closed)
	assert.False(t, svc.HasSegmenter())
}

func TestProcessRejectsConcurrentRun(t *testing.T) {
	repo := models.NewProcessingStateRepository()
	svc := newService(repo)
	require.True(t, repo.StartProcessing("edges"))

	_, err := svc.Process(context.Background(), frame(t), "sketch", processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrProcessingActive)
}

func TestProcessCancelled(t *testing.T) {
	svc := newService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Process(ctx, frame(t), "cartoon", processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	state := svc.State()
	assert.True(t, state.Cancelled)
	assert.False(t, state.IsActive)
}

func TestCancelStopsActiveRun(t *testing.T) {
	svc := newService(nil)
	step := &blockingStep{started: make(chan struct{})}
	require.NoError(t, svc.Methods().Register(methods.Method{
		Name:  "block",
		Build: func(methods.BuildOptions) *chain.Chain { return chain.NewChain(step) },
	}))

	input := frame(t)
	errs := make(chan error, 1)
	go func() {
		_, err := svc.Process(context.Background(), input, "block", processing.DefaultParams(), nil)
		errs <- err
	}()
	<-step.started

	_, err := svc.Process(context.Background(), frame(t), "sketch", processing.DefaultParams(), nil)
	assert.ErrorIs(t, err, ErrProcessingActive)

	svc.Cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	state := svc.State()
	assert.True(t, state.Cancelled)
	assert.False(t, state.IsActive)
	assert.Equal(t, "block", state.Method)

	result, err := svc.Process(context.Background(), frame(t), "sketch", processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer result.Close()
	assert.Equal(t, "Complete", svc.State().CurrentStage)
}

func TestCancelWithoutRun(t *testing.T) {
	svc := newService(nil)
	svc.Cancel()
	assert.False(t, svc.State().Cancelled)
}

func TestRenderFrameLeavesStateAlone(t *testing.T) {
	svc := newService(nil)
	c, err := svc.BuildChain("edges", processing.DefaultParams())
	require.NoError(t, err)

	result, err := svc.RenderFrame(context.Background(), c, frame(t), "edges", processing.DefaultParams())
	require.NoError(t, err)
	defer result.Close()

	assert.Equal(t, "", svc.State().CurrentStage)
	assert.Len(t, result.Stages, c.StepCount())
}

func TestProcessFile(t *testing.T) {
	svc := newService(nil)
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.jpg")

	require.NoError(t, svc.Saver().SaveToPath(in, frame(t)))

	result, err := svc.ProcessFile(context.Background(), in, out, "ink", processing.DefaultParams(), nil)
	require.NoError(t, err)
	defer result.Close()

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = svc.ProcessFile(context.Background(), in, filepath.Join(dir, "out.gif"), "ink", processing.DefaultParams(), nil)
	assert.Error(t, err)
	_, err = svc.ProcessFile(context.Background(), filepath.Join(dir, "missing.png"), out, "ink", processing.DefaultParams(), nil)
	assert.Error(t, err)
}
