package segmentation

import (
	"context"
	"fmt"
	"image"
	"sync"

	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig describes a single-input, single-output segmentation model with
// an NCHW RGB float input and a confidence output of OutputRank 4 (1x1xHxW)
// or 3 (1xHxW).
type ONNXConfig struct {
	ModelPath         string `yaml:"model_path"`
	SharedLibraryPath string `yaml:"shared_library_path"`
	InputName         string `yaml:"input_name"`
	OutputName        string `yaml:"output_name"`
	InputWidth        int    `yaml:"input_width"`
	InputHeight       int    `yaml:"input_height"`
	OutputRank        int    `yaml:"output_rank"`
	OutputsLogits     bool   `yaml:"outputs_logits"`
	IntraOpThreads    int    `yaml:"intra_op_threads"`
}

func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		InputName:   "input",
		OutputName:  "output",
		InputWidth:  256,
		InputHeight: 256,
		OutputRank:  4,
	}
}

func (c ONNXConfig) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.InputName == "" || c.OutputName == "" {
		return fmt.Errorf("input and output tensor names are required")
	}
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return fmt.Errorf("invalid model input size: %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.OutputRank != 3 && c.OutputRank != 4 {
		return fmt.Errorf("output rank must be 3 or 4, got %d", c.OutputRank)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("intra-op threads must not be negative: %d", c.IntraOpThreads)
	}
	return nil
}

// OutputShape is the shape the output tensor is bound with.
func (c ONNXConfig) OutputShape() ort.Shape {
	w, h := int64(c.InputWidth), int64(c.InputHeight)
	if c.OutputRank == 3 {
		return ort.NewShape(1, h, w)
	}
	return ort.NewShape(1, 1, h, w)
}

// ONNXSegmenter runs a segmentation model through onnxruntime. Sessions are
// bound to fixed tensors, so Segment calls are serialized.
type ONNXSegmenter struct {
	mu      sync.Mutex
	config  ONNXConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewONNXSegmenter(config ONNXConfig) (*ONNXSegmenter, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid segmentation config")
	}

	if !ort.IsInitialized() {
		if config.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(config.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "onnxruntime initialization failed")
		}
	}

	w, h := int64(config.InputWidth), int64(config.InputHeight)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, h, w))
	if err != nil {
		return nil, errors.Wrap(err, "input tensor creation failed")
	}
	output, err := ort.NewEmptyTensor[float32](config.OutputShape())
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "output tensor creation failed")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "session options creation failed")
	}
	defer options.Destroy()

	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "setting intra-op threads failed")
		}
	}

	session, err := ort.NewAdvancedSession(config.ModelPath,
		[]string{config.InputName}, []string{config.OutputName},
		[]ort.Value{input}, []ort.Value{output}, options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "loading model %s failed", config.ModelPath)
	}

	return &ONNXSegmenter{
		config:  config,
		session: session,
		input:   input,
		output:  output,
	}, nil
}

func (s *ONNXSegmenter) Segment(ctx context.Context, frame *safe.Mat) (*ConfidenceMask, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := conversion.MatToImage(frame)
	if err != nil {
		return nil, errors.Wrap(err, "frame conversion failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("segmenter is closed")
	}

	if err := FillInputTensor(img, s.config.InputWidth, s.config.InputHeight, s.input.GetData()); err != nil {
		return nil, err
	}

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "model inference failed")
	}

	values := s.output.GetData()
	if s.config.OutputsLogits {
		values = Sigmoid(values)
	}

	small, err := NewConfidenceMask(s.config.InputWidth, s.config.InputHeight, values)
	if err != nil {
		return nil, errors.Wrap(err, "model output has unexpected shape")
	}

	b := img.Bounds()
	return ResizeMask(small, b.Dx(), b.Dy()), nil
}

func (s *ONNXSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			return errors.Wrap(err, "session destroy failed")
		}
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return nil
}

// FillInputTensor resizes img to width x height and writes planar RGB in [0, 1] into dst.
func FillInputTensor(img image.Image, width, height int, dst []float32) error {
	plane := width * height
	if len(dst) < 3*plane {
		return fmt.Errorf("input tensor holds %d floats, needs %d", len(dst), 3*plane)
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	b := resized.Bounds()

	red := dst[0:plane]
	green := dst[plane : 2*plane]
	blue := dst[2*plane : 3*plane]

	i := 0
	for y := b.Min.Y; y < b.Min.Y+height; y++ {
		for x := b.Min.X; x < b.Min.X+width; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255
			green[i] = float32(g>>8) / 255
			blue[i] = float32(bl>>8) / 255
			i++
		}
	}
	return nil
}

// Sigmoid maps logits to probabilities in a new slice.
func Sigmoid(logits []float32) []float32 {
	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = 1 / (1 + math32.Exp(-v))
	}
	return out
}

// ResizeMask scales mask to width x height with bilinear interpolation.
func ResizeMask(mask *ConfidenceMask, width, height int) *ConfidenceMask {
	if mask.Width == width && mask.Height == height {
		values := make([]float32, len(mask.Values))
		copy(values, mask.Values)
		return &ConfidenceMask{Width: width, Height: height, Values: values}
	}

	resized := resize.Resize(uint(width), uint(height), mask.Gray(), resize.Bilinear)
	gray, ok := resized.(*image.Gray)
	if !ok {
		gray = image.NewGray(image.Rect(0, 0, width, height))
		b := resized.Bounds()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gray.Set(x, y, resized.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	}
	return maskFromGray(gray)
}
