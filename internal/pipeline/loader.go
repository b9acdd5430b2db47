package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"rotoscope/internal/logger"
	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/memory"
	"rotoscope/internal/opencv/safe"

	_ "github.com/chai2010/webp"
	"github.com/dustin/go-humanize"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type Loader struct {
	memoryManager *memory.Manager
	logger        logger.Logger
}

func NewLoader(memoryManager *memory.Manager, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{memoryManager: memoryManager, logger: log}
}

func (l *Loader) LoadFromPath(path string) (*ImageData, error) {
	format, ok := FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported image file: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	imageData, err := l.LoadFromBytes(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	imageData.Path = path
	return imageData, nil
}

// LoadFromBytes decodes data into a BGR Mat. OpenCV is tried first; formats
// its build lacks fall back to the Go decoders.
func (l *Loader) LoadFromBytes(data []byte, format Format) (*ImageData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image data is empty")
	}

	l.logger.Debug("ImageLoader", "decoding image", map[string]interface{}{
		"format": string(format),
		"size":   humanize.Bytes(uint64(len(data))),
	})

	mat, err := l.decodeOpenCV(data)
	if err != nil {
		l.logger.Debug("ImageLoader", "OpenCV decode failed, using Go decoders", map[string]interface{}{
			"error": err.Error(),
		})

		mat, err = l.decodeGo(data)
		if err != nil {
			return nil, err
		}
	}

	imageData := &ImageData{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Channels:  mat.Channels(),
		Format:    format,
		SizeBytes: int64(len(data)),
	}

	l.logger.Info("ImageLoader", "image loaded", map[string]interface{}{
		"width":    imageData.Width,
		"height":   imageData.Height,
		"channels": imageData.Channels,
		"format":   string(format),
	})

	return imageData, nil
}

func (l *Loader) decodeOpenCV(data []byte) (*safe.Mat, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image with OpenCV: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("OpenCV decoded an empty image")
	}

	return safe.NewMatFromMatWithTracker(mat, l.tracker(), "loaded_image")
}

func (l *Loader) decodeGo(data []byte) (*safe.Mat, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	mat, err := conversion.ImageToMat(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert decoded image: %w", err)
	}

	if mat.Channels() == 1 {
		color, err := conversion.GrayToBGR(mat)
		mat.Close()
		if err != nil {
			return nil, err
		}
		mat = color
	}
	return mat, nil
}

func (l *Loader) tracker() safe.MemoryTracker {
	if l.memoryManager == nil {
		return nil
	}
	return l.memoryManager
}
