package video

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"rotoscope/internal/logger"
	"rotoscope/internal/opencv/memory"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/services"
	"rotoscope/internal/timing"

	"go.uber.org/atomic"
	"gocv.io/x/gocv"
)

const defaultFPS = 25.0

var codecs = map[string]string{
	".mp4": "mp4v",
	".mov": "mp4v",
	".avi": "MJPG",
	".mkv": "XVID",
}

// CodecForPath picks a FourCC for the output container.
func CodecForPath(path string) (string, error) {
	codec, ok := codecs[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("unsupported video container: %s", path)
	}
	return codec, nil
}

// FrameProgress reports written frames. Total is 0 when the container does not report a frame count.
type FrameProgress struct {
	Frame int
	Total int
}

type FrameProgressFunc func(FrameProgress)

// Summary describes a finished transcode.
type Summary struct {
	Frames   int
	Width    int
	Height   int
	FPS      float64
	Codec    string
	Duration time.Duration
	// Metrics holds the per-frame mean of every recorded metric.
	Metrics map[string]float64
	// Stages aggregates stage timings over all written frames.
	Stages []timing.StageStats
}

type Options struct {
	Workers int
	Codec   string
}

// Transcoder filters a video frame by frame. Frames are processed by a
// worker pool and written in their original order.
type Transcoder struct {
	service       *services.ProcessingService
	memoryManager *memory.Manager
	logger        logger.Logger
	options       Options

	framesRead    atomic.Int64
	framesWritten atomic.Int64
}

func NewTranscoder(service *services.ProcessingService, log logger.Logger, options Options) *Transcoder {
	if log == nil {
		log = logger.Nop()
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}
	return &Transcoder{
		service:       service,
		memoryManager: service.MemoryManager(),
		logger:        log,
		options:       options,
	}
}

// Counters returns frames read and written by the current or last run.
func (t *Transcoder) Counters() (read, written int64) {
	return t.framesRead.Load(), t.framesWritten.Load()
}

type frameJob struct {
	index int
	frame *safe.Mat
}

type frameResult struct {
	index  int
	result *services.Result
	err    error
}

func (t *Transcoder) Transcode(
	ctx context.Context,
	inputPath, outputPath string,
	method string,
	params processing.Params,
	progress FrameProgressFunc,
) (*Summary, error) {
	codec := t.options.Codec
	if codec == "" {
		var err error
		if codec, err = CodecForPath(outputPath); err != nil {
			return nil, err
		}
	}

	c, err := t.service.BuildChain(method, params)
	if err != nil {
		return nil, err
	}

	capture, err := gocv.OpenVideoCapture(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", inputPath, err)
	}
	defer capture.Close()

	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	total := int(capture.Get(gocv.VideoCaptureFrameCount))
	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}
	if total < 0 {
		total = 0
	}
	if err := safe.ValidateDimensions(width, height, "video transcode"); err != nil {
		return nil, err
	}

	writer, err := gocv.VideoWriterFile(outputPath, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", outputPath, err)
	}
	defer writer.Close()

	t.framesRead.Store(0)
	t.framesWritten.Store(0)

	t.logger.Info("Transcoder", "transcode started", map[string]interface{}{
		"input":   inputPath,
		"output":  outputPath,
		"method":  method,
		"codec":   codec,
		"width":   width,
		"height":  height,
		"fps":     fps,
		"frames":  total,
		"workers": t.options.Workers,
	})

	started := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan frameJob, t.options.Workers)
	results := make(chan frameResult, t.options.Workers)

	readErr := make(chan error, 1)
	go func() {
		defer close(jobs)
		readErr <- t.readFrames(runCtx, capture, width, height, jobs)
	}()

	var wg sync.WaitGroup
	for i := 0; i < t.options.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.processFrames(runCtx, c, method, params, jobs, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	stages := timing.NewTracker()
	metrics, writeErr := t.writeFrames(results, writer, total, stages, progress, cancel)

	if err := <-readErr; err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr == nil && ctx.Err() != nil {
		writeErr = ctx.Err()
	}
	if writeErr != nil {
		t.logger.Error("Transcoder", writeErr, map[string]interface{}{
			"frames_written": t.framesWritten.Load(),
		})
		return nil, writeErr
	}

	written := int(t.framesWritten.Load())
	summary := &Summary{
		Frames:   written,
		Width:    width,
		Height:   height,
		FPS:      fps,
		Codec:    codec,
		Duration: time.Since(started),
		Metrics:  metrics.mean(),
		Stages:   stages.Snapshot(),
	}

	t.logger.Info("Transcoder", "transcode completed", map[string]interface{}{
		"frames":      written,
		"duration_ms": summary.Duration.Milliseconds(),
	})

	return summary, nil
}

func (t *Transcoder) readFrames(ctx context.Context, capture *gocv.VideoCapture, width, height int, jobs chan<- frameJob) error {
	for index := 0; ; index++ {
		frame, err := t.memoryManager.GetMat(height, width, gocv.MatTypeCV8UC3, "video_frame")
		if err != nil {
			return fmt.Errorf("frame buffer allocation failed: %w", err)
		}

		m := frame.GetMat()
		if ok := capture.Read(&m); !ok || m.Empty() {
			t.memoryManager.ReleaseMat(frame)
			return nil
		}
		t.framesRead.Inc()

		select {
		case jobs <- frameJob{index: index, frame: frame}:
		case <-ctx.Done():
			t.memoryManager.ReleaseMat(frame)
			return nil
		}
	}
}

func (t *Transcoder) processFrames(
	ctx context.Context,
	c *chain.Chain,
	method string,
	params processing.Params,
	jobs <-chan frameJob,
	results chan<- frameResult,
) {
	for job := range jobs {
		var result *services.Result
		err := ctx.Err()
		if err == nil {
			result, err = t.service.RenderFrame(ctx, c, job.frame, method, params)
		}
		t.memoryManager.ReleaseMat(job.frame)

		if err != nil {
			err = fmt.Errorf("frame %d: %w", job.index, err)
		}
		results <- frameResult{index: job.index, result: result, err: err}
	}
}

func (t *Transcoder) writeFrames(
	results <-chan frameResult,
	writer *gocv.VideoWriter,
	total int,
	stages *timing.Tracker,
	progress FrameProgressFunc,
	cancel context.CancelFunc,
) (*metricAccumulator, error) {
	buffer := newReorderBuffer[*services.Result]()
	metrics := newMetricAccumulator()
	var firstErr error

	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}

	for res := range results {
		if res.err != nil {
			fail(res.err)
			continue
		}
		if firstErr != nil {
			res.result.Close()
			continue
		}

		for _, ready := range buffer.push(res.index, res.result) {
			if firstErr == nil {
				if err := writer.Write(ready.Output.GetMat()); err != nil {
					fail(fmt.Errorf("frame write failed: %w", err))
				} else {
					metrics.add(ready.Metrics)
					for _, stage := range ready.Stages {
						stages.Observe(stage.Stage, stage.Duration, stage.Skipped)
					}
					written := t.framesWritten.Inc()
					if progress != nil {
						progress(FrameProgress{Frame: int(written), Total: total})
					}
				}
			}
			ready.Close()
		}
	}

	for _, leftover := range buffer.drain() {
		leftover.Close()
	}

	return metrics, firstErr
}

type metricAccumulator struct {
	sums   map[string]float64
	counts map[string]int
}

func newMetricAccumulator() *metricAccumulator {
	return &metricAccumulator{sums: make(map[string]float64), counts: make(map[string]int)}
}

func (a *metricAccumulator) add(values map[string]float64) {
	for name, v := range values {
		a.sums[name] += v
		a.counts[name]++
	}
}

func (a *metricAccumulator) mean() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for name, sum := range a.sums {
		out[name] = sum / float64(a.counts[name])
	}
	return out
}
