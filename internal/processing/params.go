package processing

import (
	"fmt"

	"rotoscope/internal/models"
)

const (
	MinSize  = 0
	MaxSize  = 15
	MinDepth = 0
	MaxDepth = 10
)

// Params holds the two user-facing controls every method is driven by.
// Size controls kernel and neighbourhood sizes, Depth controls how strong
// or sharp the effect is. Everything else is derived.
type Params struct {
	Size  int `yaml:"size"`
	Depth int `yaml:"depth"`
}

func DefaultParams() Params {
	return Params{Size: 3, Depth: 5}
}

func (p Params) Validate() error {
	if p.Size < MinSize || p.Size > MaxSize {
		return models.NewValidationError("size", p.Size,
			fmt.Sprintf("must be between %d and %d", MinSize, MaxSize))
	}
	if p.Depth < MinDepth || p.Depth > MaxDepth {
		return models.NewValidationError("depth", p.Depth,
			fmt.Sprintf("must be between %d and %d", MinDepth, MaxDepth))
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("size=%d depth=%d", p.Size, p.Depth)
}

// Ksize is the odd blur kernel size, 2*Size+1.
func (p Params) Ksize() int {
	return 2*p.Size + 1
}

// BlockSize is the adaptive threshold neighbourhood, always odd and >= 3.
func (p Params) BlockSize() int {
	return 2*p.Size + 3
}

// MedianKsize is Ksize raised to the smallest aperture medianBlur does useful work with.
func (p Params) MedianKsize() int {
	if k := p.Ksize(); k > 3 {
		return k
	}
	return 3
}

// CannyThresholds returns the hysteresis pair. Deeper settings lower the
// thresholds and keep more edges; high stays at 3x low.
func (p Params) CannyThresholds() (low, high float32) {
	low = float32(100 - 8*p.Depth)
	return low, 3 * low
}

// AdaptiveC is the constant subtracted from the local mean.
func (p Params) AdaptiveC() float32 {
	return float32(12 - p.Depth)
}

func (p Params) BilateralPasses() int {
	return 1 + p.Depth/4
}

// DarkenGain scales pencil strokes after dodging.
func (p Params) DarkenGain() float64 {
	return 1 + 0.15*float64(p.Depth)
}

// MarkerFraction is the share of the distance transform maximum above
// which a pixel counts as sure foreground for watershed seeding.
func (p Params) MarkerFraction() float64 {
	f := 0.7 - 0.05*float64(p.Depth)
	switch {
	case f < 0.1:
		return 0.1
	case f > 0.9:
		return 0.9
	}
	return f
}

func (p Params) MorphKsize() int {
	if p.Size < 4 {
		return 3
	}
	return 5
}
