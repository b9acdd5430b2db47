package main

import (
	"context"
	"fmt"
	"os"

	"rotoscope/internal/config"

	"github.com/spf13/pflag"
)

const AppName = "rotoscope"

type cliOptions struct {
	configPath string
	method     string
	size       int
	depth      int
	output     string
	workers    int
	logLevel   string
	logFormat  string
	model      string
	onnxLib    string
	threshold  float32
	feather    float64
	codec      string
	list       bool
	quiet      bool
}

func main() {
	opts := cliOptions{}
	flags := pflag.NewFlagSet(AppName, pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <input> [output]\n\n", AppName)
		fmt.Fprintf(os.Stderr, "Applies a stylized filter method to an image or video.\n\n")
		flags.PrintDefaults()
	}

	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.method, "method", "m", "", "filter method (see --list)")
	flags.IntVarP(&opts.size, "size", "s", 0, "size control, 0-15")
	flags.IntVarP(&opts.depth, "depth", "d", 0, "depth control, 0-10")
	flags.StringVarP(&opts.output, "output", "o", "", "output path (default <input>_<method>.<ext>)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "parallel workers")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&opts.model, "model", "", "ONNX person segmentation model; enables the rotoscope method")
	flags.StringVar(&opts.onnxLib, "onnxruntime-lib", "", "path to the onnxruntime shared library")
	flags.Float32Var(&opts.threshold, "threshold", 0, "segmentation confidence threshold, (0, 1]")
	flags.Float64Var(&opts.feather, "feather", 0, "segmentation mask feather radius in pixels")
	flags.StringVar(&opts.codec, "codec", "", "FourCC for video output (default chosen from extension)")
	flags.BoolVar(&opts.list, "list", false, "list available methods and exit")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress progress output")

	flags.Parse(os.Args[1:])

	cfg, err := loadConfig(flags, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(2)
	}

	if opts.list {
		printMethods(os.Stdout)
		return
	}

	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		os.Exit(2)
	}

	input := flags.Arg(0)
	output := opts.output
	if flags.NArg() == 2 {
		output = flags.Arg(1)
	}
	if output == "" {
		output = defaultOutputPath(input, cfg.Method)
	}

	app, err := NewApplication(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}

	if err := app.Run(input, output, opts.quiet); err != nil {
		app.Shutdown()
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
	app.Shutdown()
}

// loadConfig reads the config file, then applies flags the user set explicitly.
func loadConfig(flags *pflag.FlagSet, opts cliOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if flags.Changed("method") {
		cfg.Method = opts.method
	}
	if flags.Changed("size") {
		cfg.Params.Size = opts.size
		overrideAll(&cfg, func(o *config.ParamsOverride) { o.Size = nil })
	}
	if flags.Changed("depth") {
		cfg.Params.Depth = opts.depth
		overrideAll(&cfg, func(o *config.ParamsOverride) { o.Depth = nil })
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat(opts.logFormat)
	}
	if flags.Changed("model") {
		cfg.Segmentation.Enabled = opts.model != ""
		cfg.Segmentation.Model.ModelPath = opts.model
	}
	if flags.Changed("onnxruntime-lib") {
		cfg.Segmentation.Model.SharedLibraryPath = opts.onnxLib
	}
	if flags.Changed("threshold") {
		cfg.Segmentation.Threshold = opts.threshold
	}
	if flags.Changed("feather") {
		cfg.Segmentation.FeatherRadius = opts.feather
	}
	if flags.Changed("codec") {
		cfg.Output.VideoCodec = opts.codec
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// overrideAll clears per-method overrides so an explicit flag wins everywhere.
func overrideAll(cfg *config.Config, clear func(*config.ParamsOverride)) {
	for name, override := range cfg.Methods {
		clear(&override)
		cfg.Methods[name] = override
	}
}
