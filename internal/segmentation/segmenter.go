package segmentation

import (
	"context"
	"fmt"

	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"
)

// DefaultThreshold is the confidence at which a pixel counts as foreground.
const DefaultThreshold float32 = 0.5

// Segmenter estimates a person/foreground confidence for every pixel of a BGR frame.
type Segmenter interface {
	Segment(ctx context.Context, frame *safe.Mat) (*ConfidenceMask, error)
	Close() error
}

// MaskSource adapts a Segmenter into a binary CV_8UC1 mask producer.
type MaskSource struct {
	segmenter Segmenter
	threshold float32
}

func NewMaskSource(segmenter Segmenter, threshold float32) *MaskSource {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &MaskSource{segmenter: segmenter, threshold: threshold}
}

func (s *MaskSource) Threshold() float32 {
	return s.threshold
}

func (s *MaskSource) Mask(ctx context.Context, frame *safe.Mat) (*safe.Mat, error) {
	if s.segmenter == nil {
		return nil, fmt.Errorf("mask source has no segmenter")
	}

	confidence, err := s.segmenter.Segment(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	return conversion.GrayToMat(confidence.Binarize(s.threshold))
}
