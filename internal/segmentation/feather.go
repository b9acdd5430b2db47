package segmentation

import (
	"context"
	"image"

	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"github.com/anthonynsimon/bild/blur"
)

// FeatherGray softens mask edges with a Gaussian of the given radius. Radius 0 returns a copy.
func FeatherGray(img *image.Gray, radius float64) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	if radius <= 0 {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:(y+1)*out.Stride], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}

	blurred := blur.Gaussian(img, radius)
	for i := range out.Pix {
		// bild returns RGBA with equal channels for gray input
		out.Pix[i] = blurred.Pix[4*i]
	}
	return out
}

// Feather returns a softened copy of mask.
func Feather(mask *ConfidenceMask, radius float64) *ConfidenceMask {
	return maskFromGray(FeatherGray(mask.Gray(), radius))
}

// FeatherStep feathers a single-channel mask inside a chain.
type FeatherStep struct {
	Radius float64
}

func NewFeatherStep(radius float64) *FeatherStep {
	return &FeatherStep{Radius: radius}
}

func (f *FeatherStep) Name() string {
	return "feather"
}

func (f *FeatherStep) ShouldExecute(params processing.Params) bool {
	return f.Radius > 0
}

func (f *FeatherStep) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	gray, err := conversion.MatToGray(input)
	if err != nil {
		return nil, err
	}

	return conversion.GrayToMat(FeatherGray(gray, f.Radius))
}
