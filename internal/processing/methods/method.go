package methods

import (
	"errors"

	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"
	"rotoscope/internal/processing/filters"
)

var (
	ErrUnknownMethod     = errors.New("unknown method")
	ErrSegmenterRequired = errors.New("method requires a segmenter")
	ErrInvalidMethod     = errors.New("invalid method definition")
)

// BuildOptions carries what a preset needs to assemble its chain.
type BuildOptions struct {
	Params        processing.Params
	Masks         filters.MaskSource
	FeatherRadius float64
}

// Method is a named preset: a recipe that turns options into a processing chain.
type Method struct {
	Name              string
	Description       string
	RequiresSegmenter bool
	Build             func(opts BuildOptions) *chain.Chain
}

// Info describes a registered method for listings.
type Info struct {
	Name              string
	Description       string
	RequiresSegmenter bool
	Steps             []string
}
