package background

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/limits"
)

// maxImageBytes bounds how much of a background asset is read.
const maxImageBytes = 64 << 20

// videoExtensions are decoded through a capture backend rather than here.
var videoExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true,
}

// IsVideoPath reports whether path names a video file.
func IsVideoPath(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// Decode reads a PNG, JPEG, GIF, WebP or BMP image. Animated GIFs become a
// looping Sequence; everything else is Static.
func Decode(r io.Reader) (Source, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read background: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("background exceeds %d bytes: %w", maxImageBytes, ErrUnsupported)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if err := limits.ValidateFrameDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"function": "Decode",
		"format":   format,
		"width":    cfg.Width,
		"height":   cfg.Height,
	})

	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode gif: %w", err)
		}
		if len(g.Image) > 1 {
			logger.WithField("frames", len(g.Image)).Debug("Decoded animated background")
			seq, err := decodeAnimated(g)
			if err != nil {
				return nil, err
			}
			return seq, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", format, err)
	}
	f, err := frame.FromImage(img)
	if err != nil {
		return nil, err
	}
	logger.Debug("Decoded static background")
	st, err := NewStatic(f)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Load decodes the image file at path.
func Load(path string) (Source, error) {
	if IsVideoPath(path) {
		return nil, fmt.Errorf("%s is a video: %w", path, ErrUnsupported)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file)
}

// decodeAnimated renders GIF frames onto a canvas honoring disposal methods.
func decodeAnimated(g *gif.GIF) (*Sequence, error) {
	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	canvas := image.NewRGBA(bounds)
	frames := make([]*frame.Frame, 0, len(g.Image))
	delays := make([]time.Duration, 0, len(g.Image))

	for i, pal := range g.Image {
		var previous *image.RGBA
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(bounds)
			draw.Draw(previous, bounds, canvas, image.Point{}, draw.Src)
		}

		draw.Draw(canvas, pal.Bounds(), pal, pal.Bounds().Min, draw.Over)

		f, err := frame.FromImage(canvas)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)

		delay := time.Duration(0)
		if i < len(g.Delay) {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		delays = append(delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, pal.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			draw.Draw(canvas, bounds, previous, image.Point{}, draw.Src)
		}
	}

	return NewSequence(frames, delays)
}
