package filters

import (
	"context"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"gocv.io/x/gocv"
)

// Canny produces white edges on black using the depth-derived hysteresis pair.
type Canny struct{}

func NewCanny() *Canny {
	return &Canny{}
}

func (c *Canny) Name() string {
	return "canny"
}

func (c *Canny) ShouldExecute(params processing.Params) bool {
	return true
}

func (c *Canny) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, c.Name(), 1); err != nil {
		return nil, err
	}

	low, high := params.CannyThresholds()
	dst := gocv.NewMat()
	gocv.Canny(input.GetMat(), &dst, low, high)
	return wrapResult(dst, c.Name())
}

// AdaptiveThreshold binarizes against a Gaussian-weighted local mean. Dark
// lines come out black on a white field.
type AdaptiveThreshold struct{}

func NewAdaptiveThreshold() *AdaptiveThreshold {
	return &AdaptiveThreshold{}
}

func (a *AdaptiveThreshold) Name() string {
	return "adaptive_threshold"
}

func (a *AdaptiveThreshold) ShouldExecute(params processing.Params) bool {
	return true
}

func (a *AdaptiveThreshold) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, a.Name(), 1); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	gocv.AdaptiveThreshold(input.GetMat(), &dst, 255,
		gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary,
		params.BlockSize(), params.AdaptiveC())
	return wrapResult(dst, a.Name())
}
