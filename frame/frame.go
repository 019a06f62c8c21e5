// Package frame provides the RGBA frame type shared by every stage of the
// compositing pipeline.
//
// A Frame is owned transiently by whichever stage is processing it. Once a
// stage publishes a Frame (returns it, presents it, or hands it to the
// recorder) the pixel buffer must not be modified; stages that need to change
// pixels work on a Clone.
package frame

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/chromakey/limits"
)

// Frame is an RGBA pixel buffer with capture metadata.
//
// Pix holds Width*Height pixels in row-major order, four bytes per pixel
// (R, G, B, A) with a stride of 4*Width.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Pix       []byte
	TraceID   string
}

// New allocates a zeroed (transparent black) frame.
func New(width, height int) (*Frame, error) {
	if err := limits.ValidateFrameDimensions(width, height); err != nil {
		return nil, err
	}
	return &Frame{
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Pix:       make([]byte, width*height*limits.BytesPerPixel),
		TraceID:   uuid.New().String(),
	}, nil
}

// FromPix wraps an existing RGBA buffer without copying it. The caller gives
// up ownership of pix.
func FromPix(pix []byte, width, height int) (*Frame, error) {
	if err := limits.ValidatePixelBuffer(pix, width, height); err != nil {
		return nil, err
	}
	return &Frame{
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Pix:       pix,
		TraceID:   uuid.New().String(),
	}, nil
}

// Solid returns a frame filled with a single color.
func Solid(width, height int, c color.RGBA) (*Frame, error) {
	f, err := New(width, height)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
		f.Pix[i+3] = c.A
	}
	return f, nil
}

// FromImage converts any image into a new frame. *image.RGBA sources with a
// tight stride are copied in one pass.
func FromImage(img image.Image) (*Frame, error) {
	if img == nil {
		return nil, fmt.Errorf("source image cannot be nil")
	}
	b := img.Bounds()
	f, err := New(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}

	if rgba, ok := img.(*image.RGBA); ok {
		rowLen := b.Dx() * 4
		for y := 0; y < b.Dy(); y++ {
			off := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			copy(f.Pix[y*rowLen:], rgba.Pix[off:off+rowLen])
		}
		return f, nil
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Pix[i] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
			f.Pix[i+3] = c.A
			i += 4
		}
	}
	return f, nil
}

// Clone returns a deep copy carrying the same metadata.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Pix:       append([]byte(nil), f.Pix...),
		TraceID:   f.TraceID,
	}
}

// Image returns a copy of the frame as an *image.RGBA.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	copy(img.Pix, f.Pix)
	return img
}

// At returns the pixel at (x, y).
func (f *Frame) At(x, y int) color.RGBA {
	i := (y*f.Width + x) * 4
	return color.RGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: f.Pix[i+3]}
}

// Validate checks dimensions and buffer length.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame cannot be nil")
	}
	return limits.ValidatePixelBuffer(f.Pix, f.Width, f.Height)
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}
