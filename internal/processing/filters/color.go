package filters

import (
	"context"

	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"gocv.io/x/gocv"
)

// Grayscale converts BGR or BGRA input to a single channel.
type Grayscale struct{}

func NewGrayscale() *Grayscale {
	return &Grayscale{}
}

func (g *Grayscale) Name() string {
	return "grayscale"
}

func (g *Grayscale) ShouldExecute(params processing.Params) bool {
	return true
}

func (g *Grayscale) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, g.Name(), 1, 3, 4); err != nil {
		return nil, err
	}

	return conversion.ConvertToGrayscale(input)
}

// ToColor expands single-channel input to BGR so presets always end in color.
type ToColor struct{}

func NewToColor() *ToColor {
	return &ToColor{}
}

func (c *ToColor) Name() string {
	return "to_color"
}

func (c *ToColor) ShouldExecute(params processing.Params) bool {
	return true
}

func (c *ToColor) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, c.Name(), 1, 3, 4); err != nil {
		return nil, err
	}

	if input.Channels() == 3 {
		return input.Clone()
	}

	bgr, err := toBGR(input.GetMat())
	if err != nil {
		return nil, err
	}
	return wrapResult(bgr, c.Name())
}

type Invert struct{}

func NewInvert() *Invert {
	return &Invert{}
}

func (i *Invert) Name() string {
	return "invert"
}

func (i *Invert) ShouldExecute(params processing.Params) bool {
	return true
}

func (i *Invert) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, i.Name()); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	gocv.BitwiseNot(input.GetMat(), &dst)
	return wrapResult(dst, i.Name())
}
