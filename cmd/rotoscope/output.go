package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"rotoscope/internal/logger"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/methods"
	"rotoscope/internal/timing"
	"rotoscope/internal/video"
)

// defaultOutputPath puts the result next to input as <name>_<method><ext>.
func defaultOutputPath(input, method string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("%s_%s%s", base, method, ext)
}

func logFormat(name string) logger.Format {
	return logger.Format(strings.ToLower(name))
}

func formatStageProgress(p chain.Progress) string {
	status := p.Elapsed.Round(time.Microsecond).String()
	if p.Skipped {
		status = "skipped"
	}
	return fmt.Sprintf("[%d/%d] %-20s %s", p.Step, p.Total, p.Stage, status)
}

func formatFrameProgress(p video.FrameProgress) string {
	if p.Total <= 0 {
		return fmt.Sprintf("frame %d", p.Frame)
	}
	return fmt.Sprintf("frame %d/%d (%.0f%%)", p.Frame, p.Total, 100*float64(p.Frame)/float64(p.Total))
}

func formatMetrics(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return ""
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.3g", name, metrics[name])
	}
	return " [" + strings.Join(parts, " ") + "]"
}

// formatSlowest lists the n stages with the largest total time and their
// mean per frame.
func formatSlowest(stats []timing.StageStats, n int) string {
	slowest := timing.Slowest(stats, n)
	parts := make([]string, 0, len(slowest))
	for _, stage := range slowest {
		if stage.Count == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s/frame", stage.Stage, stage.Average().Round(time.Microsecond)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "slowest stages: " + strings.Join(parts, ", ")
}

func printMethods(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, info := range methods.NewManager().Describe() {
		note := ""
		if info.RequiresSegmenter {
			note = " (needs --model)"
		}
		fmt.Fprintf(tw, "%s\t%s%s\n", info.Name, info.Description, note)
		fmt.Fprintf(tw, "\t  %s\n", strings.Join(info.Steps, " -> "))
	}
	tw.Flush()
}
