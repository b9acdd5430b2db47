package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"rotoscope/internal/logger"
	"rotoscope/internal/models"
	"rotoscope/internal/opencv/memory"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/pipeline"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/filters"
	"rotoscope/internal/processing/methods"
	"rotoscope/internal/segmentation"

	"github.com/dustin/go-humanize"
)

var (
	ErrSegmenterUnavailable = errors.New("no segmenter configured")
	ErrUnknownMethod        = methods.ErrUnknownMethod
	ErrProcessingActive     = errors.New("processing already in progress")
)

// StageTiming records how long one chain step took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
	Skipped  bool
}

// Result is the output of one Process call. The caller owns Output.
type Result struct {
	Output   *safe.Mat
	Method   string
	Params   processing.Params
	Metrics  map[string]float64
	Stages   []StageTiming
	Duration time.Duration
}

func (r *Result) Close() {
	if r != nil && r.Output != nil {
		r.Output.Close()
	}
}

type Options struct {
	Workers       int
	MaskThreshold float32
	FeatherRadius float64
	JPEGQuality   int
	WebPQuality   float32
}

// ProcessingService runs named methods over images.
type ProcessingService struct {
	memoryManager *memory.Manager
	methodManager *methods.Manager
	stateRepo     *models.ProcessingStateRepository
	loader        *pipeline.Loader
	saver         *pipeline.Saver
	logger        logger.Logger
	workerPool    chan struct{}
	options       Options

	mu        sync.RWMutex
	segmenter segmentation.Segmenter
	masks     filters.MaskSource
	cancelRun context.CancelFunc
}

func NewProcessingService(
	memMgr *memory.Manager,
	methodMgr *methods.Manager,
	stateRepo *models.ProcessingStateRepository,
	log logger.Logger,
	options Options,
) *ProcessingService {
	if log == nil {
		log = logger.Nop()
	}
	if memMgr == nil {
		memMgr = memory.NewManager(log)
	}
	if methodMgr == nil {
		methodMgr = methods.NewManager()
	}
	if stateRepo == nil {
		stateRepo = models.NewProcessingStateRepository()
	}
	if options.Workers <= 0 {
		options.Workers = runtime.NumCPU()
	}

	workers := make(chan struct{}, options.Workers)
	for i := 0; i < options.Workers; i++ {
		workers <- struct{}{}
	}

	return &ProcessingService{
		memoryManager: memMgr,
		methodManager: methodMgr,
		stateRepo:     stateRepo,
		loader:        pipeline.NewLoader(memMgr, log),
		saver:         pipeline.NewSaver(log, options.JPEGQuality, options.WebPQuality),
		logger:        log,
		workerPool:    workers,
		options:       options,
	}
}

// SetSegmenter installs the segmenter used by mask-driven methods. The
// service closes it on Close or when it is replaced.
func (ps *ProcessingService) SetSegmenter(segmenter segmentation.Segmenter) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.segmenter != nil && ps.segmenter != segmenter {
		if err := ps.segmenter.Close(); err != nil {
			ps.logger.Error("ProcessingService", err, map[string]interface{}{"operation": "segmenter close"})
		}
	}

	ps.segmenter = segmenter
	ps.masks = nil
	if segmenter != nil {
		ps.masks = segmentation.NewMaskSource(segmenter, ps.options.MaskThreshold)
	}
}

func (ps *ProcessingService) HasSegmenter() bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.segmenter != nil
}

func (ps *ProcessingService) Methods() *methods.Manager {
	return ps.methodManager
}

func (ps *ProcessingService) State() models.ProcessingState {
	return ps.stateRepo.GetState()
}

func (ps *ProcessingService) Loader() *pipeline.Loader {
	return ps.loader
}

func (ps *ProcessingService) Saver() *pipeline.Saver {
	return ps.saver
}

func (ps *ProcessingService) MemoryManager() *memory.Manager {
	return ps.memoryManager
}

// BuildChain validates method and params and assembles the chain to run.
func (ps *ProcessingService) BuildChain(method string, params processing.Params) (*chain.Chain, error) {
	ps.mu.RLock()
	masks := ps.masks
	ps.mu.RUnlock()

	c, err := ps.methodManager.Build(method, methods.BuildOptions{
		Params:        params,
		Masks:         masks,
		FeatherRadius: ps.options.FeatherRadius,
	})
	if errors.Is(err, methods.ErrSegmenterRequired) {
		return nil, fmt.Errorf("%w: method %s needs person segmentation", ErrSegmenterUnavailable, method)
	}
	return c, err
}

// Process runs method over input. Only one Process call may be active per service.
func (ps *ProcessingService) Process(
	ctx context.Context,
	input *safe.Mat,
	method string,
	params processing.Params,
	progress chain.ProgressFunc,
) (*Result, error) {
	if err := safe.ValidateMatForOperation(input, "image processing"); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	c, err := ps.BuildChain(method, params)
	if err != nil {
		return nil, err
	}

	if !ps.stateRepo.StartProcessing(method) {
		return nil, ErrProcessingActive
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ps.mu.Lock()
	ps.cancelRun = cancel
	ps.mu.Unlock()

	ps.logger.Info("ProcessingService", "processing started", map[string]interface{}{
		"method": method,
		"params": params.String(),
		"width":  input.Cols(),
		"height": input.Rows(),
	})

	result, err := ps.run(runCtx, c, input, method, params, func(p chain.Progress) {
		ps.stateRepo.UpdateProgress(p.Stage, p.Fraction)
		if progress != nil {
			progress(p)
		}
	})

	ps.mu.Lock()
	ps.cancelRun = nil
	ps.mu.Unlock()

	if err != nil {
		if runCtx.Err() != nil {
			ps.stateRepo.CancelProcessing()
		} else {
			ps.stateRepo.FailProcessing(err)
		}
		ps.logger.Error("ProcessingService", err, map[string]interface{}{
			"method": method,
		})
		return nil, err
	}

	ps.stateRepo.CompleteProcessing()

	stats := ps.memoryManager.GetStats()
	ps.logger.Info("ProcessingService", "processing completed", map[string]interface{}{
		"method":      method,
		"duration_ms": result.Duration.Milliseconds(),
		"metrics":     result.Metrics,
		"mats_active": stats.ActiveMats,
		"mats_in_use": humanize.Bytes(uint64(stats.InUse())),
	})

	return result, nil
}

// RenderFrame runs a prebuilt chain without touching the processing state,
// for callers that process many frames concurrently. Concurrency is still
// bounded by the worker pool.
func (ps *ProcessingService) RenderFrame(
	ctx context.Context,
	c *chain.Chain,
	frame *safe.Mat,
	method string,
	params processing.Params,
) (*Result, error) {
	return ps.run(ctx, c, frame, method, params, nil)
}

func (ps *ProcessingService) run(
	ctx context.Context,
	c *chain.Chain,
	input *safe.Mat,
	method string,
	params processing.Params,
	progress chain.ProgressFunc,
) (*Result, error) {
	select {
	case <-ps.workerPool:
		defer func() { ps.workerPool <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	recorder := chain.NewRecorder()
	runCtx := chain.WithRecorder(ctx, recorder)

	stages := make([]StageTiming, 0, c.StepCount())
	started := time.Now()

	output, err := c.Execute(runCtx, input, params, func(p chain.Progress) {
		stages = append(stages, StageTiming{Stage: p.Stage, Duration: p.Elapsed, Skipped: p.Skipped})
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("method %s failed: %w", method, err)
	}

	return &Result{
		Output:   output,
		Method:   method,
		Params:   params,
		Metrics:  recorder.Snapshot(),
		Stages:   stages,
		Duration: time.Since(started),
	}, nil
}

// ProcessFile loads inputPath, runs method and writes the result to outputPath.
func (ps *ProcessingService) ProcessFile(
	ctx context.Context,
	inputPath, outputPath string,
	method string,
	params processing.Params,
	progress chain.ProgressFunc,
) (*Result, error) {
	if _, ok := pipeline.FormatFromPath(outputPath); !ok {
		return nil, fmt.Errorf("unsupported output file: %s", outputPath)
	}

	imageData, err := ps.loader.LoadFromPath(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}
	defer imageData.Close()

	result, err := ps.Process(ctx, imageData.Mat, method, params, progress)
	if err != nil {
		return nil, err
	}

	if err := ps.saver.SaveToPath(outputPath, result.Output); err != nil {
		result.Close()
		return nil, fmt.Errorf("failed to save output: %w", err)
	}

	return result, nil
}

// Cancel stops the active Process run. The run reports context.Canceled and
// the state stays active until it has returned.
func (ps *ProcessingService) Cancel() {
	ps.mu.RLock()
	cancel := ps.cancelRun
	ps.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
}

// Shutdown cancels any active run and releases the segmenter and pooled Mats.
func (ps *ProcessingService) Shutdown() {
	ps.Cancel()
	ps.SetSegmenter(nil)
	ps.memoryManager.Cleanup()
}
