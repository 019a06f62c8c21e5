// Package limits provides centralized size limits for frames and recording
// artifacts. This ensures consistent validation across capture, compositing,
// recording and upload.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxArtifactSize is the largest recording artifact accepted for upload (50 MiB).
	MaxArtifactSize = 50 * 1024 * 1024

	// MaxFrameDimension bounds either side of a frame in pixels.
	MaxFrameDimension = 8192

	// MaxFramePixels bounds the total pixel count of a frame (8K UHD).
	MaxFramePixels = 7680 * 4320

	// BytesPerPixel is the size of one RGBA pixel.
	BytesPerPixel = 4
)

var (
	// ErrArtifactEmpty indicates an artifact with no encoded data.
	ErrArtifactEmpty = errors.New("empty artifact")

	// ErrArtifactTooLarge indicates an artifact exceeding the configured limit.
	ErrArtifactTooLarge = errors.New("artifact too large")

	// ErrInvalidDimensions indicates a zero, negative or oversized frame.
	ErrInvalidDimensions = errors.New("invalid frame dimensions")

	// ErrBufferSize indicates a pixel buffer whose length does not match its dimensions.
	ErrBufferSize = errors.New("pixel buffer size mismatch")
)

// ValidateArtifactSize validates an artifact size against maxSize.
// A maxSize of zero or less applies MaxArtifactSize.
func ValidateArtifactSize(size int, maxSize int) error {
	if maxSize <= 0 {
		maxSize = MaxArtifactSize
	}
	if size == 0 {
		return ErrArtifactEmpty
	}
	if size > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrArtifactTooLarge, size, maxSize)
	}
	return nil
}

// ValidateFrameDimensions checks width and height against MaxFrameDimension
// and MaxFramePixels.
func ValidateFrameDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width > MaxFrameDimension || height > MaxFrameDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d per side", ErrInvalidDimensions, width, height, MaxFrameDimension)
	}
	if width*height > MaxFramePixels {
		return fmt.Errorf("%w: %d pixels exceeds limit %d", ErrInvalidDimensions, width*height, MaxFramePixels)
	}
	return nil
}

// ValidatePixelBuffer checks that pix holds exactly width*height RGBA pixels.
func ValidatePixelBuffer(pix []byte, width, height int) error {
	if err := ValidateFrameDimensions(width, height); err != nil {
		return err
	}
	want := width * height * BytesPerPixel
	if len(pix) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrBufferSize, len(pix), want, width, height)
	}
	return nil
}
