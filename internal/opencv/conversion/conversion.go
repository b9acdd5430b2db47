package conversion

import (
	"fmt"
	"image"
	"image/draw"

	"rotoscope/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertToGrayscale converts multi-channel images to single-channel grayscale
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if src.Channels() == 1 {
		return src.Clone()
	}

	dst, err := safe.NewMat(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	if err != nil {
		return nil, fmt.Errorf("destination Mat creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()

	switch src.Channels() {
	case 3:
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(srcMat, &dstMat, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	return dst, nil
}

// GrayToBGR expands a single-channel Mat to three channels.
func GrayToBGR(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateChannels(src, "gray to BGR conversion", 1); err != nil {
		return nil, err
	}

	dst := gocv.NewMat()
	gocv.CvtColor(src.GetMat(), &dst, gocv.ColorGrayToBGR)
	return safe.Wrap(dst)
}

// MatToImage converts an 8-bit gray, BGR or BGRA Mat to a Go image.
func MatToImage(src *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}
	if err := safe.ValidateMatType(src.Type(), "Mat to image conversion"); err != nil {
		return nil, err
	}

	mat := src.GetMat()
	if !mat.IsContinuous() {
		return nil, fmt.Errorf("Mat to image conversion requires a continuous Mat")
	}
	data, err := mat.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("Mat data access failed: %w", err)
	}

	rows, cols := src.Rows(), src.Cols()
	switch src.Type() {
	case gocv.MatTypeCV8UC1:
		img := image.NewGray(image.Rect(0, 0, cols, rows))
		copy(img.Pix, data)
		return img, nil
	case gocv.MatTypeCV8UC3:
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for i, j := 0, 0; i < len(data); i, j = i+3, j+4 {
			img.Pix[j] = data[i+2]
			img.Pix[j+1] = data[i+1]
			img.Pix[j+2] = data[i]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	case gocv.MatTypeCV8UC4:
		img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
		for i := 0; i < len(data); i += 4 {
			img.Pix[i] = data[i+2]
			img.Pix[i+1] = data[i+1]
			img.Pix[i+2] = data[i]
			img.Pix[i+3] = data[i+3]
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported Mat type for image conversion: %v", src.Type())
	}
}

// ImageToMat converts a Go image into a BGR Mat, or a single-channel Mat for *image.Gray.
func ImageToMat(img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	if err := safe.ValidateDimensions(bounds.Dx(), bounds.Dy(), "image to Mat conversion"); err != nil {
		return nil, err
	}

	if gray, ok := img.(*image.Gray); ok {
		return GrayToMat(gray)
	}

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != 4*bounds.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	bgr := make([]byte, bounds.Dx()*bounds.Dy()*3)
	for i, j := 0, 0; j < len(bgr); i, j = i+4, j+3 {
		bgr[j] = rgba.Pix[i+2]
		bgr[j+1] = rgba.Pix[i+1]
		bgr[j+2] = rgba.Pix[i]
	}

	mat, err := gocv.NewMatFromBytes(bounds.Dy(), bounds.Dx(), gocv.MatTypeCV8UC3, bgr)
	if err != nil {
		return nil, fmt.Errorf("Mat creation from image failed: %w", err)
	}
	defer mat.Close()

	return safe.NewMatFromMat(mat)
}

// GrayToMat copies a gray image into a CV_8UC1 Mat.
func GrayToMat(img *image.Gray) (*safe.Mat, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pix := img.Pix
	if img.Stride != width || bounds.Min != (image.Point{}) {
		pix = make([]byte, width*height)
		for y := 0; y < height; y++ {
			row := img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			copy(pix[y*width:(y+1)*width], row[:width])
		}
	}

	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return nil, fmt.Errorf("Mat creation from gray image failed: %w", err)
	}
	defer mat.Close()

	// NewMatFromBytes aliases the Go slice; clone so the Mat owns its pixels.
	return safe.NewMatFromMat(mat)
}

// MatToGray returns a single-channel Mat as *image.Gray.
func MatToGray(src *safe.Mat) (*image.Gray, error) {
	if err := safe.ValidateChannels(src, "Mat to gray conversion", 1); err != nil {
		return nil, err
	}
	img, err := MatToImage(src)
	if err != nil {
		return nil, err
	}
	return img.(*image.Gray), nil
}

// ResizeMat resizes src to width x height.
func ResizeMat(src *safe.Mat, width, height int, interpolation gocv.InterpolationFlags) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "resize"); err != nil {
		return nil, err
	}
	if err := safe.ValidateDimensions(width, height, "resize"); err != nil {
		return nil, err
	}
	if src.Cols() == width && src.Rows() == height {
		return src.Clone()
	}

	dst, err := safe.NewMat(height, width, src.Type())
	if err != nil {
		return nil, fmt.Errorf("resize destination creation failed: %w", err)
	}

	srcMat := src.GetMat()
	dstMat := dst.GetMat()
	gocv.Resize(srcMat, &dstMat, image.Point{X: width, Y: height}, 0, 0, interpolation)

	return dst, nil
}
