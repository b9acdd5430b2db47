package segmentation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"rotoscope/internal/opencv/safe"
	"rotoscope/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeSegmenter struct {
	mask *ConfidenceMask
	err  error
}

func (f *fakeSegmenter) Segment(ctx context.Context, frame *safe.Mat) (*ConfidenceMask, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mask, nil
}

func (f *fakeSegmenter) Close() error { return nil }

func TestNewConfidenceMaskClampsValues(t *testing.T) {
	nan := float32(math.NaN())
	mask, err := NewConfidenceMask(2, 2, []float32{-0.5, 0.25, 1.5, nan})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.25, 1, 0}, mask.Values)
	assert.Equal(t, float32(1), mask.At(0, 1))

	_, err = NewConfidenceMask(2, 2, []float32{1})
	assert.Error(t, err)
	_, err = NewConfidenceMask(0, 2, nil)
	assert.Error(t, err)
}

func TestBinarizeAndCoverage(t *testing.T) {
	mask, err := NewConfidenceMask(4, 1, []float32{0.1, 0.5, 0.49, 0.9})
	require.NoError(t, err)

	bin := mask.Binarize(0.5)
	assert.Equal(t, []uint8{0, 255, 0, 255}, bin.Pix)
	assert.Equal(t, 0.5, mask.Coverage(0.5))
	assert.Equal(t, 1.0, mask.Coverage(0))
	assert.Equal(t, 0.0, (&ConfidenceMask{}).Coverage(0.5))
}

func TestFeatherGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 20, 1))
	for x := 10; x < 20; x++ {
		img.SetGray(x, 0, color.Gray{Y: 255})
	}

	copied := FeatherGray(img, 0)
	assert.Equal(t, img.Pix, copied.Pix)
	copied.Pix[0] = 9
	assert.Equal(t, uint8(0), img.Pix[0], "radius 0 must copy")

	soft := FeatherGray(img, 3)
	assert.Greater(t, soft.GrayAt(9, 0).Y, uint8(0))
	assert.Less(t, soft.GrayAt(10, 0).Y, uint8(255))
	assert.Equal(t, uint8(0), soft.GrayAt(0, 0).Y)
}

func TestFeatherConfidenceMask(t *testing.T) {
	mask, err := NewConfidenceMask(3, 1, []float32{0, 1, 0})
	require.NoError(t, err)

	same := Feather(mask, 0)
	assert.Equal(t, 3, same.Width)
	assert.InDeltaSlice(t, []float32{0, 1, 0}, same.Values, 1e-6)
}

func TestSigmoid(t *testing.T) {
	out := Sigmoid([]float32{0, 20, -20})
	assert.InDelta(t, 0.5, out[0], 1e-6)
	assert.InDelta(t, 1.0, out[1], 1e-6)
	assert.InDelta(t, 0.0, out[2], 1e-6)
}

func TestFillInputTensor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	dst := make([]float32, 3*4*4)
	require.NoError(t, FillInputTensor(img, 4, 4, dst))
	assert.InDelta(t, 1.0, dst[0], 1e-6)
	assert.InDelta(t, 0.0, dst[16], 1e-6)
	assert.InDelta(t, 0.0, dst[32], 1e-6)

	assert.Error(t, FillInputTensor(img, 4, 4, make([]float32, 10)))
}

func TestResizeMask(t *testing.T) {
	mask, err := NewConfidenceMask(2, 2, []float32{1, 1, 1, 1})
	require.NoError(t, err)

	big := ResizeMask(mask, 6, 4)
	assert.Equal(t, 6, big.Width)
	assert.Equal(t, 4, big.Height)
	assert.Len(t, big.Values, 24)
	assert.InDelta(t, 1.0, big.Values[10], 1e-6)

	same := ResizeMask(mask, 2, 2)
	same.Values[0] = 0
	assert.Equal(t, float32(1), mask.Values[0])
}

func TestMaskSource(t *testing.T) {
	frame, err := safe.NewMat(1, 3, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer frame.Close()

	confidence, err := NewConfidenceMask(3, 1, []float32{0.2, 0.8, 0.6})
	require.NoError(t, err)

	source := NewMaskSource(&fakeSegmenter{mask: confidence}, 0.7)
	assert.Equal(t, float32(0.7), source.Threshold())

	mask, err := source.Mask(context.Background(), frame)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, 1, mask.Channels())
	v, err := mask.GetUCharAt(0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), v)
	v, err = mask.GetUCharAt(0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v)

	assert.Equal(t, DefaultThreshold, NewMaskSource(nil, 0).Threshold())
}

func TestMaskSourceErrors(t *testing.T) {
	frame, err := safe.NewMat(1, 1, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer frame.Close()

	_, err = NewMaskSource(nil, 0.5).Mask(context.Background(), frame)
	assert.Error(t, err)

	boom := errors.New("model missing")
	_, err = NewMaskSource(&fakeSegmenter{err: boom}, 0.5).Mask(context.Background(), frame)
	assert.ErrorIs(t, err, boom)
}

func TestFeatherStep(t *testing.T) {
	step := NewFeatherStep(2)
	assert.Equal(t, "feather", step.Name())
	assert.True(t, step.ShouldExecute(processing.DefaultParams()))
	assert.False(t, NewFeatherStep(0).ShouldExecute(processing.DefaultParams()))

	mask, err := safe.NewMat(8, 8, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer mask.Close()
	m := mask.GetMat()
	m.SetTo(gocv.NewScalar(0, 0, 0, 0))
	for x := 4; x < 8; x++ {
		for y := 0; y < 8; y++ {
			require.NoError(t, mask.SetUCharAt(y, x, 255))
		}
	}

	out, err := step.Apply(context.Background(), mask, processing.DefaultParams())
	require.NoError(t, err)
	defer out.Close()

	edge, err := out.GetUCharAt(4, 3)
	require.NoError(t, err)
	assert.Greater(t, edge, uint8(0))
}

func TestONNXConfigValidate(t *testing.T) {
	cfg := DefaultONNXConfig()
	assert.Error(t, cfg.Validate(), "model path required")

	cfg.ModelPath = "model.onnx"
	assert.NoError(t, cfg.Validate())

	cfg.OutputRank = 2
	assert.Error(t, cfg.Validate())

	cfg.OutputRank = 3
	assert.NoError(t, cfg.Validate())

	cfg.InputWidth = 0
	assert.Error(t, cfg.Validate())
}

func TestONNXConfigOutputShape(t *testing.T) {
	cfg := DefaultONNXConfig()
	cfg.InputWidth, cfg.InputHeight = 320, 240
	assert.Equal(t, []int64{1, 1, 240, 320}, []int64(cfg.OutputShape()))

	cfg.OutputRank = 3
	assert.Equal(t, []int64{1, 240, 320}, []int64(cfg.OutputShape()))
}
