package filters

import (
	"context"
	"fmt"

	"rotoscope/internal/opencv/safe"

	"gocv.io/x/gocv"
)

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// wrapResult takes ownership of dst. An empty dst means the OpenCV call
// produced nothing and is reported as an error.
func wrapResult(dst gocv.Mat, operation string) (*safe.Mat, error) {
	result, err := safe.Wrap(dst)
	if err != nil {
		return nil, fmt.Errorf("%s produced no output: %w", operation, err)
	}
	return result, nil
}

// toBGR returns a 3-channel copy of src, converting gray and BGRA input.
// The caller closes the result.
func toBGR(src gocv.Mat) (gocv.Mat, error) {
	dst := gocv.NewMat()
	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, &dst, gocv.ColorGrayToBGR)
	case 3:
		src.CopyTo(&dst)
	case 4:
		gocv.CvtColor(src, &dst, gocv.ColorBGRAToBGR)
	default:
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
	return dst, nil
}
