package pipeline

import (
	"path/filepath"
	"strings"

	"rotoscope/internal/opencv/safe"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var imageExtensions = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".webp": FormatWebP,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// ImageData is a decoded image together with where it came from.
type ImageData struct {
	Mat       *safe.Mat
	Width     int
	Height    int
	Channels  int
	Format    Format
	Path      string
	SizeBytes int64
}

// Close releases the underlying Mat.
func (d *ImageData) Close() {
	if d != nil && d.Mat != nil {
		d.Mat.Close()
	}
}

// FormatFromPath maps a file extension to an image format.
func FormatFromPath(path string) (Format, bool) {
	format, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

func IsVideoPath(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// SupportedImageExtensions lists accepted image extensions.
func SupportedImageExtensions() []string {
	return []string{".bmp", ".jpeg", ".jpg", ".png", ".tif", ".tiff", ".webp"}
}
