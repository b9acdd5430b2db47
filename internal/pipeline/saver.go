package pipeline

import (
	"bufio"
	"fmt"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"rotoscope/internal/logger"
	"rotoscope/internal/opencv/conversion"
	"rotoscope/internal/opencv/safe"

	"github.com/chai2010/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const (
	DefaultJPEGQuality = 95
	DefaultWebPQuality = 90
)

type Saver struct {
	logger      logger.Logger
	jpegQuality int
	webpQuality float32
}

func NewSaver(log logger.Logger, jpegQuality int, webpQuality float32) *Saver {
	if log == nil {
		log = logger.Nop()
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	if webpQuality <= 0 || webpQuality > 100 {
		webpQuality = DefaultWebPQuality
	}
	return &Saver{logger: log, jpegQuality: jpegQuality, webpQuality: webpQuality}
}

func (s *Saver) SaveToWriter(writer io.Writer, mat *safe.Mat, format Format) error {
	if err := safe.ValidateMatForOperation(mat, "save"); err != nil {
		return fmt.Errorf("no image data to save: %w", err)
	}

	img, err := conversion.MatToImage(mat)
	if err != nil {
		return fmt.Errorf("failed to convert Mat for encoding: %w", err)
	}

	if format == "" {
		format = FormatPNG
	}

	s.logger.Debug("ImageSaver", "saving image", map[string]interface{}{
		"format": string(format),
		"width":  mat.Cols(),
		"height": mat.Rows(),
	})

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(writer, img, &jpeg.Options{Quality: s.jpegQuality})
	case FormatPNG:
		err = png.Encode(writer, img)
	case FormatWebP:
		err = webp.Encode(writer, img, &webp.Options{Quality: s.webpQuality})
	case FormatBMP:
		err = bmp.Encode(writer, img)
	case FormatTIFF:
		err = tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	if err != nil {
		s.logger.Error("ImageSaver", err, map[string]interface{}{
			"format": string(format),
		})
		return fmt.Errorf("%s encoding failed: %w", format, err)
	}

	return nil
}

// SaveToPath writes mat to path, choosing the format from its extension.
func (s *Saver) SaveToPath(path string, mat *safe.Mat) error {
	format, ok := FormatFromPath(path)
	if !ok {
		return fmt.Errorf("unsupported output file: %s", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	buffered := bufio.NewWriter(file)
	if err := s.SaveToWriter(buffered, mat, format); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := buffered.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"format": string(format),
	})
	return nil
}
