package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"rotoscope/internal/config"
	"rotoscope/internal/logger"
	"rotoscope/internal/models"
	"rotoscope/internal/opencv/memory"
	"rotoscope/internal/pipeline"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/methods"
	"rotoscope/internal/segmentation"
	"rotoscope/internal/services"
	"rotoscope/internal/shutdown"
	"rotoscope/internal/video"

	"github.com/dustin/go-humanize"
)

// Application wires the processing stack for one CLI invocation.
type Application struct {
	config            config.Config
	logger            logger.Logger
	memoryManager     *memory.Manager
	processingService *services.ProcessingService
	transcoder        *video.Transcoder
	shutdownManager   *shutdown.Manager
}

func NewApplication(ctx context.Context, cfg config.Config) (*Application, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	appLogger, err := logger.New(os.Stderr, cfg.Log.Format, level)
	if err != nil {
		return nil, err
	}

	shutdownManager := shutdown.NewManager(ctx, appLogger)

	memManager := memory.NewManager(appLogger)
	memManager.SetLimit(cfg.MemoryLimitBytes())
	shutdownManager.Register(memManager)

	processingService := services.NewProcessingService(
		memManager,
		methods.NewManager(),
		models.NewProcessingStateRepository(),
		appLogger,
		services.Options{
			Workers:       cfg.Workers,
			MaskThreshold: cfg.Segmentation.Threshold,
			FeatherRadius: cfg.Segmentation.FeatherRadius,
			JPEGQuality:   cfg.Output.JPEGQuality,
			WebPQuality:   cfg.Output.WebPQuality,
		},
	)
	shutdownManager.Register(processingService)

	if cfg.Segmentation.Enabled {
		segmenter, err := segmentation.NewONNXSegmenter(cfg.Segmentation.Model)
		if err != nil {
			shutdownManager.Shutdown()
			return nil, fmt.Errorf("segmentation model: %w", err)
		}
		processingService.SetSegmenter(segmenter)
	}

	transcoder := video.NewTranscoder(processingService, appLogger, video.Options{
		Workers: cfg.Workers,
		Codec:   cfg.Output.VideoCodec,
	})

	appLogger.Debug("Application", "initialized", map[string]interface{}{
		"method":       cfg.Method,
		"workers":      cfg.Workers,
		"segmentation": cfg.Segmentation.Enabled,
		"memory_limit": humanize.IBytes(uint64(cfg.MemoryLimitBytes())),
	})

	return &Application{
		config:            cfg,
		logger:            appLogger,
		memoryManager:     memManager,
		processingService: processingService,
		transcoder:        transcoder,
		shutdownManager:   shutdownManager,
	}, nil
}

// Run filters input into output. Video paths go through the transcoder.
func (app *Application) Run(input, output string, quiet bool) error {
	app.shutdownManager.Listen()
	ctx := app.shutdownManager.Context()

	method := app.config.Method
	params := app.config.ParamsFor(method)

	if pipeline.IsVideoPath(input) {
		var progress video.FrameProgressFunc
		if !quiet {
			progress = func(p video.FrameProgress) {
				fmt.Fprintf(os.Stderr, "\r%s", formatFrameProgress(p))
			}
		}

		summary, err := app.transcoder.Transcode(ctx, input, output, method, params, progress)
		if !quiet {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}

		for _, stage := range summary.Stages {
			app.logger.Debug("Application", "stage timing", map[string]interface{}{
				"stage":   stage.Stage,
				"frames":  stage.Count,
				"skipped": stage.Skipped,
				"avg":     stage.Average().String(),
				"max":     stage.Max.String(),
			})
		}

		fmt.Printf("%s -> %s: %d frames, %s (%s, %.1f fps)%s\n",
			input, output, summary.Frames, summary.Duration.Round(time.Millisecond),
			method, summary.FPS, formatMetrics(summary.Metrics))
		if slowest := formatSlowest(summary.Stages, 3); slowest != "" {
			fmt.Println(slowest)
		}
		return nil
	}

	var progress chain.ProgressFunc
	if !quiet {
		progress = func(p chain.Progress) {
			fmt.Fprintln(os.Stderr, formatStageProgress(p))
		}
	}

	result, err := app.processingService.ProcessFile(ctx, input, output, method, params, progress)
	if err != nil {
		return err
	}
	defer result.Close()

	size := ""
	if info, err := os.Stat(output); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Printf("%s -> %s: %s in %s (%s, %s)%s\n",
		input, output, size, result.Duration.Round(time.Millisecond),
		method, params, formatMetrics(result.Metrics))
	return nil
}

func (app *Application) Shutdown() {
	app.shutdownManager.Shutdown()
}
