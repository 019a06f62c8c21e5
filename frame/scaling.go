package frame

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Scaler resizes frames.
//
// Bilinear interpolation is the default; it is cheap enough to pre-scale a
// background once per dimension change and smooth enough for keyed edges.
type Scaler struct {
	interpolator draw.Interpolator
}

// NewScaler creates a bilinear frame scaler.
func NewScaler() *Scaler {
	return &Scaler{interpolator: draw.BiLinear}
}

// NewScalerWithInterpolator creates a scaler using the given x/image/draw
// interpolator (for example draw.CatmullRom for offline background assets).
func NewScalerWithInterpolator(interp draw.Interpolator) *Scaler {
	if interp == nil {
		interp = draw.BiLinear
	}
	return &Scaler{interpolator: interp}
}

// Scale resizes a frame to the target dimensions. The source frame is never
// modified; when no scaling is required a copy is returned.
func (s *Scaler) Scale(f *Frame, targetWidth, targetHeight int) (*Frame, error) {
	if f == nil {
		return nil, fmt.Errorf("source frame cannot be nil")
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source frame: %w", err)
	}

	dst, err := New(targetWidth, targetHeight)
	if err != nil {
		return nil, fmt.Errorf("invalid target dimensions: %w", err)
	}
	dst.Seq = f.Seq
	dst.Timestamp = f.Timestamp
	dst.TraceID = f.TraceID

	if !s.IsScalingRequired(f.Width, f.Height, targetWidth, targetHeight) {
		copy(dst.Pix, f.Pix)
		return dst, nil
	}

	src := &image.RGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}
	out := &image.RGBA{Pix: dst.Pix, Stride: targetWidth * 4, Rect: image.Rect(0, 0, targetWidth, targetHeight)}
	s.interpolator.Scale(out, out.Bounds(), src, src.Bounds(), draw.Src, nil)

	return dst, nil
}

// GetScaleFactors calculates the horizontal and vertical scaling factors.
func (s *Scaler) GetScaleFactors(srcWidth, srcHeight, dstWidth, dstHeight int) (xFactor, yFactor float64) {
	xFactor = float64(dstWidth) / float64(srcWidth)
	yFactor = float64(dstHeight) / float64(srcHeight)
	return
}

// IsScalingRequired checks if scaling is needed for given dimensions.
func (s *Scaler) IsScalingRequired(srcWidth, srcHeight, dstWidth, dstHeight int) bool {
	return srcWidth != dstWidth || srcHeight != dstHeight
}
