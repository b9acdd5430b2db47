package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rotoscope/internal/logger"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/timing"
	"rotoscope/internal/video"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(opts *cliOptions) *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "")
	flags.StringVarP(&opts.method, "method", "m", "", "")
	flags.IntVarP(&opts.size, "size", "s", 0, "")
	flags.IntVarP(&opts.depth, "depth", "d", 0, "")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "")
	flags.StringVar(&opts.logFormat, "log-format", "", "")
	return flags
}

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "photo_sketch.jpg", defaultOutputPath("photo.jpg", "sketch"))
	assert.Equal(t, "dir/clip_cartoon.mp4", defaultOutputPath("dir/clip.mp4", "cartoon"))
	assert.Equal(t, "raw_ink.png", defaultOutputPath("raw", "ink"))
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	opts := cliOptions{}
	flags := newFlags(&opts)
	require.NoError(t, flags.Parse([]string{"-m", "edges", "-s", "7", "--log-format", "JSON"}))

	cfg, err := loadConfig(flags, opts)
	require.NoError(t, err)
	assert.Equal(t, "edges", cfg.Method)
	assert.Equal(t, 7, cfg.Params.Size)
	assert.Equal(t, 5, cfg.Params.Depth)
	assert.Equal(t, logger.FormatJSON, cfg.Log.Format)
}

func TestLoadConfigUnsetFlagsKeepFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method: ink\nparams:\n  size: 2\n  depth: 9\n"), 0o644))

	opts := cliOptions{}
	flags := newFlags(&opts)
	require.NoError(t, flags.Parse([]string{"-c", path, "-d", "1"}))

	cfg, err := loadConfig(flags, opts)
	require.NoError(t, err)
	assert.Equal(t, "ink", cfg.Method)
	assert.Equal(t, 2, cfg.Params.Size)
	assert.Equal(t, 1, cfg.Params.Depth)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	opts := cliOptions{}
	flags := newFlags(&opts)
	require.NoError(t, flags.Parse([]string{"-s", "40"}))

	_, err := loadConfig(flags, opts)
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "", formatMetrics(nil))
	assert.Equal(t, " [foreground_coverage=0.5 regions=3]",
		formatMetrics(map[string]float64{"regions": 3, "foreground_coverage": 0.5}))

	assert.Equal(t, "frame 4", formatFrameProgress(video.FrameProgress{Frame: 4}))
	assert.Equal(t, "frame 5/10 (50%)", formatFrameProgress(video.FrameProgress{Frame: 5, Total: 10}))

	line := formatStageProgress(chain.Progress{Stage: "darken", Step: 3, Total: 4, Skipped: true, Elapsed: time.Millisecond})
	assert.Contains(t, line, "[3/4]")
	assert.Contains(t, line, "skipped")
}

func TestFormatSlowest(t *testing.T) {
	stats := []timing.StageStats{
		{Stage: "grayscale", Count: 2, Total: 2 * time.Millisecond},
		{Stage: "darken", Skipped: 2},
		{Stage: "bilateral", Count: 2, Total: 10 * time.Millisecond},
		{Stage: "canny", Count: 2, Total: 4 * time.Millisecond},
	}

	assert.Equal(t, "slowest stages: bilateral 5ms/frame, canny 2ms/frame", formatSlowest(stats, 2))
	assert.Equal(t, "", formatSlowest(nil, 3))
	assert.Equal(t, "", formatSlowest([]timing.StageStats{{Stage: "darken", Skipped: 1}}, 3))
}

func TestPrintMethods(t *testing.T) {
	var buf bytes.Buffer
	printMethods(&buf)

	out := buf.String()
	for _, name := range []string{"sketch", "edges", "cartoon", "ink", "regions", "rotoscope"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "needs --model")
}
