package filters

import (
	"context"
	"image"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"gocv.io/x/gocv"
)

const (
	bilateralDiameter = 9
	bilateralSigma    = 75
)

// GaussianBlur smooths with a square Ksize kernel. Size 0 yields a 1x1 kernel, so the step is skipped.
type GaussianBlur struct{}

func NewGaussianBlur() *GaussianBlur {
	return &GaussianBlur{}
}

func (g *GaussianBlur) Name() string {
	return "gaussian_blur"
}

func (g *GaussianBlur) ShouldExecute(params processing.Params) bool {
	return params.Ksize() > 1
}

func (g *GaussianBlur) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, g.Name()); err != nil {
		return nil, err
	}

	k := params.Ksize()
	if k <= 1 {
		return input.Clone()
	}

	dst := gocv.NewMat()
	gocv.GaussianBlur(input.GetMat(), &dst, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
	return wrapResult(dst, g.Name())
}

type MedianBlur struct{}

func NewMedianBlur() *MedianBlur {
	return &MedianBlur{}
}

func (m *MedianBlur) Name() string {
	return "median_blur"
}

func (m *MedianBlur) ShouldExecute(params processing.Params) bool {
	return true
}

func (m *MedianBlur) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, m.Name()); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	gocv.MedianBlur(input.GetMat(), &dst, params.MedianKsize())
	return wrapResult(dst, m.Name())
}

// Bilateral flattens color regions while keeping edges, repeated BilateralPasses times.
type Bilateral struct{}

func NewBilateral() *Bilateral {
	return &Bilateral{}
}

func (b *Bilateral) Name() string {
	return "bilateral"
}

func (b *Bilateral) ShouldExecute(params processing.Params) bool {
	return true
}

func (b *Bilateral) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, b.Name(), 1, 3); err != nil {
		return nil, err
	}

	src := input.GetMat()
	current := src.Clone()
	for pass := 0; pass < params.BilateralPasses(); pass++ {
		if err := checkContext(ctx); err != nil {
			current.Close()
			return nil, err
		}

		next := gocv.NewMat()
		gocv.BilateralFilter(current, &next, bilateralDiameter, bilateralSigma, bilateralSigma)
		current.Close()
		current = next
	}

	return wrapResult(current, b.Name())
}
