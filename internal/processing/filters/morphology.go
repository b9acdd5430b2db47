package filters

import (
	"context"
	"fmt"
	"image"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"gocv.io/x/gocv"
)

type MorphOp int

const (
	MorphOpen MorphOp = iota
	MorphClose
	MorphDilate
	MorphErode
)

func (op MorphOp) String() string {
	switch op {
	case MorphOpen:
		return "open"
	case MorphClose:
		return "close"
	case MorphDilate:
		return "dilate"
	case MorphErode:
		return "erode"
	default:
		return fmt.Sprintf("morph(%d)", int(op))
	}
}

// Morphology applies op with an elliptical MorphKsize kernel, Iterations times.
type Morphology struct {
	Op         MorphOp
	Iterations int
}

func NewMorphology(op MorphOp, iterations int) *Morphology {
	if iterations < 1 {
		iterations = 1
	}
	return &Morphology{Op: op, Iterations: iterations}
}

func (m *Morphology) Name() string {
	return "morphology_" + m.Op.String()
}

func (m *Morphology) ShouldExecute(params processing.Params) bool {
	return m.Iterations > 0
}

func (m *Morphology) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, m.Name()); err != nil {
		return nil, err
	}

	k := params.MorphKsize()
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: k, Y: k})
	defer kernel.Close()

	src := input.GetMat()
	current := src.Clone()
	for i := 0; i < m.Iterations; i++ {
		next := gocv.NewMat()
		if err := morph(m.Op, current, &next, kernel); err != nil {
			next.Close()
			current.Close()
			return nil, err
		}
		current.Close()
		current = next
	}

	return wrapResult(current, m.Name())
}

func morph(op MorphOp, src gocv.Mat, dst *gocv.Mat, kernel gocv.Mat) error {
	switch op {
	case MorphOpen:
		gocv.MorphologyEx(src, dst, gocv.MorphOpen, kernel)
	case MorphClose:
		gocv.MorphologyEx(src, dst, gocv.MorphClose, kernel)
	case MorphDilate:
		gocv.Dilate(src, dst, kernel)
	case MorphErode:
		gocv.Erode(src, dst, kernel)
	default:
		return fmt.Errorf("unsupported morphology operation: %v", op)
	}
	return nil
}
