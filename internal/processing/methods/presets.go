package methods

import (
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/filters"
	"rotoscope/internal/segmentation"
)

const (
	Sketch    = "sketch"
	Edges     = "edges"
	Cartoon   = "cartoon"
	Ink       = "ink"
	Regions   = "regions"
	Rotoscope = "rotoscope"
)

func builtins() []Method {
	return []Method{
		{
			Name:        Sketch,
			Description: "pencil sketch from a color-dodged gray image",
			Build:       func(BuildOptions) *chain.Chain { return sketchChain() },
		},
		{
			Name:        Edges,
			Description: "dark Canny outlines on white",
			Build: func(BuildOptions) *chain.Chain {
				return chain.NewChain(
					filters.NewGrayscale(),
					filters.NewMedianBlur(),
					filters.NewCanny(),
					filters.NewMorphology(filters.MorphDilate, 1),
					filters.NewInvert(),
					filters.NewToColor(),
				)
			},
		},
		{
			Name:        Cartoon,
			Description: "flattened bilateral color with adaptive-threshold outlines",
			Build:       func(BuildOptions) *chain.Chain { return cartoonChain() },
		},
		{
			Name:        Ink,
			Description: "high-contrast ink drawing from adaptive thresholding",
			Build: func(BuildOptions) *chain.Chain {
				return chain.NewChain(
					filters.NewGrayscale(),
					filters.NewGaussianBlur(),
					filters.NewAdaptiveThreshold(),
					filters.NewMorphology(filters.MorphClose, 1),
					filters.NewMorphology(filters.MorphOpen, 1),
					filters.NewToColor(),
				)
			},
		},
		{
			Name:        Regions,
			Description: "watershed regions painted from a fixed palette",
			Build: func(BuildOptions) *chain.Chain {
				return chain.NewChain(
					filters.NewGaussianBlur(),
					filters.NewWatershed(),
				)
			},
		},
		{
			Name:              Rotoscope,
			Description:       "cartoon foreground over a sketched background using a person mask",
			RequiresSegmenter: true,
			Build: func(opts BuildOptions) *chain.Chain {
				refine := chain.NewChain(
					filters.NewMorphology(filters.MorphOpen, 1),
					filters.NewMorphology(filters.MorphClose, 1),
					segmentation.NewFeatherStep(opts.FeatherRadius),
				)
				return chain.NewChain(
					filters.NewMaskComposite(cartoonChain(), sketchChain(), opts.Masks, refine),
				)
			},
		},
	}
}

func sketchChain() *chain.Chain {
	return chain.NewChain(
		filters.NewGrayscale(),
		filters.NewDodge(),
		filters.NewDarken(),
		filters.NewToColor(),
	)
}

func cartoonChain() *chain.Chain {
	outline := chain.NewChain(
		filters.NewGrayscale(),
		filters.NewMedianBlur(),
		filters.NewAdaptiveThreshold(),
		filters.NewMorphology(filters.MorphOpen, 1),
	)
	return chain.NewChain(
		filters.NewBilateral(),
		filters.NewEdgeOverlay(outline),
	)
}
