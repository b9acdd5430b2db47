package segmentation

import (
	"fmt"
	"image"
)

// ConfidenceMask holds per-pixel foreground probabilities in row-major order.
type ConfidenceMask struct {
	Width  int
	Height int
	Values []float32
}

// NewConfidenceMask copies values, clamping each to [0, 1].
func NewConfidenceMask(width, height int, values []float32) (*ConfidenceMask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid mask dimensions: %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("mask has %d values, want %d", len(values), width*height)
	}

	clamped := make([]float32, len(values))
	for i, v := range values {
		clamped[i] = clamp01(v)
	}

	return &ConfidenceMask{Width: width, Height: height, Values: clamped}, nil
}

func (m *ConfidenceMask) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Binarize returns 255 where the confidence is at least threshold and 0 elsewhere.
func (m *ConfidenceMask) Binarize(threshold float32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Values {
		if v >= threshold {
			img.Pix[i] = 255
		}
	}
	return img
}

// Coverage is the fraction of pixels Binarize would mark as foreground.
func (m *ConfidenceMask) Coverage(threshold float32) float64 {
	if len(m.Values) == 0 {
		return 0
	}

	count := 0
	for _, v := range m.Values {
		if v >= threshold {
			count++
		}
	}
	return float64(count) / float64(len(m.Values))
}

// Gray scales confidences to 0..255 without thresholding.
func (m *ConfidenceMask) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Values {
		img.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return img
}

func maskFromGray(img *image.Gray) *ConfidenceMask {
	b := img.Bounds()
	values := make([]float32, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			values = append(values, float32(img.GrayAt(x, y).Y)/255)
		}
	}
	return &ConfidenceMask{Width: b.Dx(), Height: b.Dy(), Values: values}
}

func clamp01(v float32) float32 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
