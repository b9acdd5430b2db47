package filters

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"
	"rotoscope/internal/processing/chain"

	"gocv.io/x/gocv"
)

const (
	MetricRegions = "regions"

	openIterations       = 2
	backgroundIterations = 3
)

// DefaultPalette colors watershed regions. Label 1 (background) always maps to Background.
var DefaultPalette = []color.RGBA{
	{R: 230, G: 57, B: 70, A: 255},
	{R: 241, G: 250, B: 238, A: 255},
	{R: 168, G: 218, B: 220, A: 255},
	{R: 69, G: 123, B: 157, A: 255},
	{R: 29, G: 53, B: 87, A: 255},
	{R: 244, G: 162, B: 97, A: 255},
	{R: 233, G: 196, B: 106, A: 255},
	{R: 42, G: 157, B: 143, A: 255},
}

// Watershed segments the image with distance-transform seeded watershed and
// paints each region from Palette, with region boundaries in black.
type Watershed struct {
	Palette    []color.RGBA
	Background color.RGBA
}

func NewWatershed() *Watershed {
	return &Watershed{
		Palette:    DefaultPalette,
		Background: color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

func (w *Watershed) Name() string {
	return "watershed"
}

func (w *Watershed) ShouldExecute(params processing.Params) bool {
	return true
}

func (w *Watershed) Apply(ctx context.Context, input *safe.Mat, params processing.Params) (*safe.Mat, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := safe.ValidateChannels(input, w.Name(), 1, 3, 4); err != nil {
		return nil, err
	}

	bgr, err := toBGR(input.GetMat())
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	markers, regions, err := w.markers(ctx, bgr, params)
	if err != nil {
		return nil, err
	}
	defer markers.Close()

	gocv.Watershed(bgr, &markers)

	chain.Record(ctx, MetricRegions, float64(regions))

	dst, err := w.paint(markers)
	if err != nil {
		return nil, err
	}
	return wrapResult(dst, w.Name())
}

// markers builds the CV_32S seed image: 0 unknown, 1 sure background, 2.. seeds.
func (w *Watershed) markers(ctx context.Context, bgr gocv.Mat, params processing.Params) (gocv.Mat, int, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinaryInv+gocv.ThresholdOtsu)

	k := params.MorphKsize()
	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: k, Y: k})
	defer kernel.Close()

	opened := binary.Clone()
	defer func() { opened.Close() }()
	for i := 0; i < openIterations; i++ {
		next := gocv.NewMat()
		gocv.MorphologyEx(opened, &next, gocv.MorphOpen, kernel)
		opened.Close()
		opened = next
	}

	sureBackground := opened.Clone()
	defer func() { sureBackground.Close() }()
	for i := 0; i < backgroundIterations; i++ {
		next := gocv.NewMat()
		gocv.Dilate(sureBackground, &next, kernel)
		sureBackground.Close()
		sureBackground = next
	}

	if err := checkContext(ctx); err != nil {
		return gocv.NewMat(), 0, err
	}

	distance := gocv.NewMat()
	defer distance.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(opened, &distance, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	_, maxDistance, _, _ := gocv.MinMaxLoc(distance)

	foregroundF := gocv.NewMat()
	defer foregroundF.Close()
	gocv.Threshold(distance, &foregroundF, float32(params.MarkerFraction())*maxDistance, 255, gocv.ThresholdBinary)

	sureForeground := gocv.NewMat()
	defer sureForeground.Close()
	foregroundF.ConvertTo(&sureForeground, gocv.MatTypeCV8U)

	unknown := gocv.NewMat()
	defer unknown.Close()
	gocv.Subtract(sureBackground, sureForeground, &unknown)

	components := gocv.NewMat()
	defer components.Close()
	count := gocv.ConnectedComponents(sureForeground, &components)

	markers := gocv.NewMat()
	components.ConvertToWithParams(&markers, gocv.MatTypeCV32SC1, 1, 1)

	labelData, err := markers.DataPtrInt32()
	if err != nil {
		markers.Close()
		return gocv.NewMat(), 0, fmt.Errorf("marker access failed: %w", err)
	}
	unknownData, err := unknown.DataPtrUint8()
	if err != nil {
		markers.Close()
		return gocv.NewMat(), 0, fmt.Errorf("unknown region access failed: %w", err)
	}
	for i, u := range unknownData {
		if u == 255 {
			labelData[i] = 0
		}
	}

	regions := count - 1
	if regions < 0 {
		regions = 0
	}
	return markers, regions, nil
}

func (w *Watershed) paint(markers gocv.Mat) (gocv.Mat, error) {
	labels, err := markers.DataPtrInt32()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("marker access failed: %w", err)
	}

	dst := gocv.NewMatWithSize(markers.Rows(), markers.Cols(), gocv.MatTypeCV8UC3)
	pixels, err := dst.DataPtrUint8()
	if err != nil {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("output access failed: %w", err)
	}

	for i, label := range labels {
		c := w.colorFor(label)
		pixels[3*i] = c.B
		pixels[3*i+1] = c.G
		pixels[3*i+2] = c.R
	}
	return dst, nil
}

func (w *Watershed) colorFor(label int32) color.RGBA {
	switch {
	case label <= 0:
		return color.RGBA{A: 255}
	case label == 1:
		return w.Background
	case len(w.Palette) == 0:
		return w.Background
	default:
		return w.Palette[int(label-2)%len(w.Palette)]
	}
}
