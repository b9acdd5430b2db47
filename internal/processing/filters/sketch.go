package filters

import (
	"context"
	"image"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"gocv.io/x/gocv"
)

// Dodge builds a pencil sketch from a gray image by color-dodging it with
// its own blurred negative: gray*256 / (255 - blur(255-gray)).
type Dodge struct{}

func NewDodge() *Dodge {
	return &Dodge{}
}

func (d *Dodge) Name() string {
	return "dodge"
}

func (d *Dodge) ShouldExecute(params processing.Params) bool {
	return true
}

// BlurKsize is the kernel used on the negative. It is wider than Ksize so strokes stay soft.
func (d *Dodge) BlurKsize(params processing.Params) int {
	return 3 * params.Ksize()
}

func (d *Dodge) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, d.Name(), 1); err != nil {
		return nil, err
	}

	gray := input.GetMat()
	rows, cols := gray.Rows(), gray.Cols()

	negative := gocv.NewMat()
	defer negative.Close()
	gocv.BitwiseNot(gray, &negative)

	k := d.BlurKsize(params)
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(negative, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	// 255 - blur, floored at 1 so the quotient stays finite
	denominator8 := gocv.NewMat()
	defer denominator8.Close()
	gocv.BitwiseNot(blurred, &denominator8)

	denominator := gocv.NewMat()
	defer denominator.Close()
	denominator8.ConvertTo(&denominator, gocv.MatTypeCV32F)

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), rows, cols, gocv.MatTypeCV32F)
	defer ones.Close()
	gocv.Max(denominator, ones, &denominator)

	numerator := gocv.NewMat()
	defer numerator.Close()
	gray.ConvertToWithParams(&numerator, gocv.MatTypeCV32F, 256, 0)

	quotient := gocv.NewMat()
	defer quotient.Close()
	gocv.Divide(numerator, denominator, &quotient)

	// ConvertTo saturates to [0, 255]
	dst := gocv.NewMat()
	quotient.ConvertTo(&dst, gocv.MatTypeCV8U)
	return wrapResult(dst, d.Name())
}

// Darken deepens pencil strokes: out = 255 - gain*(255 - in), saturating at 0.
type Darken struct{}

func NewDarken() *Darken {
	return &Darken{}
}

func (d *Darken) Name() string {
	return "darken"
}

func (d *Darken) ShouldExecute(params processing.Params) bool {
	return params.DarkenGain() > 1
}

func (d *Darken) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, d.Name()); err != nil {
		return nil, err
	}

	strokes := gocv.NewMat()
	defer strokes.Close()
	gocv.BitwiseNot(input.GetMat(), &strokes)

	scaled := gocv.NewMat()
	defer scaled.Close()
	strokes.ConvertToWithParams(&scaled, gocv.MatTypeCV8U, float32(params.DarkenGain()), 0)

	dst := gocv.NewMat()
	gocv.BitwiseNot(scaled, &dst)
	return wrapResult(dst, d.Name())
}
