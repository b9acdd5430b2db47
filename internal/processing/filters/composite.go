package filters

import (
	"context"
	"fmt"

	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"

	"gocv.io/x/gocv"
)

const MetricForegroundCoverage = "foreground_coverage"

// MaskSource produces a CV_8UC1 foreground mask for a frame, 255 marking foreground.
// Intermediate values are treated as partial coverage when blending.
type MaskSource interface {
	Mask(ctx context.Context, frame *safe.Mat) (*safe.Mat, error)
}

// MaskComposite renders the frame twice, once per sub-chain, and blends the
// results through a foreground mask. Refine, when set, runs on the mask first.
type MaskComposite struct {
	Foreground *chain.Chain
	Background *chain.Chain
	Source     MaskSource
	Refine     *chain.Chain
}

func NewMaskComposite(foreground, background *chain.Chain, source MaskSource, refine *chain.Chain) *MaskComposite {
	return &MaskComposite{
		Foreground: foreground,
		Background: background,
		Source:     source,
		Refine:     refine,
	}
}

func (m *MaskComposite) Name() string {
	return "mask_composite"
}

func (m *MaskComposite) ShouldExecute(params processing.Params) bool {
	return true
}

func (m *MaskComposite) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, m.Name()); err != nil {
		return nil, err
	}
	if m.Source == nil {
		return nil, fmt.Errorf("mask composite has no mask source")
	}

	mask, err := m.mask(ctx, input, params)
	if err != nil {
		return nil, err
	}
	defer mask.Close()

	chain.Record(ctx, MetricForegroundCoverage, coverage(mask.GetMat()))

	foreground, err := runColor(ctx, m.Foreground, input, params)
	if err != nil {
		return nil, fmt.Errorf("foreground: %w", err)
	}
	defer foreground.Close()

	background, err := runColor(ctx, m.Background, input, params)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	defer background.Close()

	dst, err := blend(foreground, background, mask.GetMat())
	if err != nil {
		return nil, err
	}
	return wrapResult(dst, m.Name())
}

func (m *MaskComposite) mask(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	raw, err := m.Source.Mask(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("mask source: %w", err)
	}

	if err := safe.ValidateChannels(raw, "mask", 1); err != nil {
		raw.Close()
		return nil, err
	}

	if raw.Rows() != input.Rows() || raw.Cols() != input.Cols() {
		resized, err := conversion.ResizeMat(raw, input.Cols(), input.Rows(), gocv.InterpolationNearestNeighbor)
		raw.Close()
		if err != nil {
			return nil, fmt.Errorf("mask resize: %w", err)
		}
		raw = resized
	}

	if m.Refine == nil || m.Refine.StepCount() == 0 {
		return raw, nil
	}

	refined, err := m.Refine.Execute(ctx, raw, params, nil)
	raw.Close()
	if err != nil {
		return nil, fmt.Errorf("mask refine: %w", err)
	}
	return refined, nil
}

// runColor executes c (or clones input when c is nil) and returns a BGR Mat the caller closes.
func runColor(ctx context.Context, c *chain.Chain, input *safe.Mat, params processing.Params) (gocv.Mat, error) {
	if c == nil {
		c = chain.NewChain()
	}
	out, err := c.Execute(ctx, input, params, nil)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer out.Close()

	return toBGR(out.GetMat())
}

// blend computes fg*a + bg*(1-a) with a = mask/255.
func blend(foreground, background, mask gocv.Mat) (gocv.Mat, error) {
	if foreground.Rows() != background.Rows() || foreground.Cols() != background.Cols() {
		return gocv.NewMat(), fmt.Errorf("foreground and background size mismatch: %dx%d vs %dx%d",
			foreground.Cols(), foreground.Rows(), background.Cols(), background.Rows())
	}

	alpha := gocv.NewMat()
	defer alpha.Close()
	mask.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, 1.0/255.0, 0)

	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alpha, alpha, alpha}, &alpha3)

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 1, 1, 0), mask.Rows(), mask.Cols(), gocv.MatTypeCV32FC3)
	defer ones.Close()
	inverse := gocv.NewMat()
	defer inverse.Close()
	gocv.Subtract(ones, alpha3, &inverse)

	fg := gocv.NewMat()
	defer fg.Close()
	foreground.ConvertTo(&fg, gocv.MatTypeCV32FC3)
	bg := gocv.NewMat()
	defer bg.Close()
	background.ConvertTo(&bg, gocv.MatTypeCV32FC3)

	weightedFg := gocv.NewMat()
	defer weightedFg.Close()
	gocv.Multiply(fg, alpha3, &weightedFg)
	weightedBg := gocv.NewMat()
	defer weightedBg.Close()
	gocv.Multiply(bg, inverse, &weightedBg)

	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(weightedFg, weightedBg, &sum)

	dst := gocv.NewMat()
	sum.ConvertTo(&dst, gocv.MatTypeCV8UC3)
	return dst, nil
}

// coverage is the fraction of mask pixels at or above half intensity, so a
// feathered edge counts the same as the binary mask it came from.
func coverage(mask gocv.Mat) float64 {
	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return 0
	}

	solid := gocv.NewMat()
	defer solid.Close()
	gocv.Threshold(mask, &solid, 127, 255, gocv.ThresholdBinary)

	return float64(gocv.CountNonZero(solid)) / float64(total)
}

// EdgeOverlay keeps the input color where the Edges chain output is white and
// paints black where it is dark, giving a cartoon outline.
type EdgeOverlay struct {
	Edges *chain.Chain
}

func NewEdgeOverlay(edges *chain.Chain) *EdgeOverlay {
	return &EdgeOverlay{Edges: edges}
}

func (e *EdgeOverlay) Name() string {
	return "edge_overlay"
}

func (e *EdgeOverlay) ShouldExecute(params processing.Params) bool {
	return e.Edges != nil
}

func (e *EdgeOverlay) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatForOperation(input, e.Name()); err != nil {
		return nil, err
	}

	edges, err := e.Edges.Execute(ctx, input, params, nil)
	if err != nil {
		return nil, fmt.Errorf("edges: %w", err)
	}
	defer edges.Close()

	if err := safe.ValidateChannels(edges, "edge mask", 1); err != nil {
		return nil, err
	}
	if err := safe.ValidateSameSize(input, edges, e.Name()); err != nil {
		return nil, err
	}

	bgr, err := toBGR(input.GetMat())
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	dst := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), bgr.Rows(), bgr.Cols(), gocv.MatTypeCV8UC3)
	gocv.BitwiseAndWithMask(bgr, bgr, &dst, edges.GetMat())
	return wrapResult(dst, e.Name())
}
