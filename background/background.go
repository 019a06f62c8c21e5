// Package background supplies the replacement imagery for keyed pixels.
//
// A Source is read-only once loaded. Frame returns the background for the
// current moment scaled to the requested size; scaled frames are cached so a
// static background is resized once per size change.
package background

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/frame"
)

// Errors returned by background sources.
var (
	ErrEmpty       = errors.New("background has no frames")
	ErrUnsupported = errors.New("unsupported background format")
)

// Source yields background frames.
type Source interface {
	// Frame returns the current background at width x height. The returned
	// frame must not be modified.
	Frame(width, height int) (*frame.Frame, error)

	// Size returns the native dimensions.
	Size() (width, height int)

	Close() error
}

// scaledCache remembers scaled variants of source frames for one target size.
type scaledCache struct {
	mu     sync.Mutex
	scaler *frame.Scaler
	width  int
	height int
	frames map[*frame.Frame]*frame.Frame
}

func newScaledCache() *scaledCache {
	return &scaledCache{scaler: frame.NewScaler(), frames: make(map[*frame.Frame]*frame.Frame)}
}

func (c *scaledCache) get(src *frame.Frame, width, height int) (*frame.Frame, error) {
	if src.Width == width && src.Height == height {
		return src, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if width != c.width || height != c.height {
		c.frames = make(map[*frame.Frame]*frame.Frame)
		c.width, c.height = width, height
	}
	if f, ok := c.frames[src]; ok {
		return f, nil
	}
	f, err := c.scaler.Scale(src, width, height)
	if err != nil {
		return nil, err
	}
	c.frames[src] = f
	return f, nil
}

// Static is a single still image.
type Static struct {
	frame *frame.Frame
	cache *scaledCache
}

// NewStatic wraps a decoded frame.
func NewStatic(f *frame.Frame) (*Static, error) {
	if f == nil {
		return nil, ErrEmpty
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Static{frame: f, cache: newScaledCache()}, nil
}

// Solid creates a single-color background.
func Solid(width, height int, c color.RGBA) (*Static, error) {
	f, err := frame.Solid(width, height, c)
	if err != nil {
		return nil, err
	}
	return NewStatic(f)
}

// Frame returns the image scaled to width x height.
func (s *Static) Frame(width, height int) (*frame.Frame, error) {
	return s.cache.get(s.frame, width, height)
}

// Size returns the native dimensions.
func (s *Static) Size() (int, int) {
	return s.frame.Width, s.frame.Height
}

// Close is a no-op.
func (s *Static) Close() error {
	return nil
}

// Sequence loops through frames, each shown for its delay.
type Sequence struct {
	frames []*frame.Frame
	delays []time.Duration
	total  time.Duration
	start  time.Time
	now    func() time.Time
	cache  *scaledCache
}

// DefaultFrameDelay is used for frames without a positive delay.
const DefaultFrameDelay = 100 * time.Millisecond

// NewSequence creates a looping background. delays may be shorter than
// frames; missing entries use DefaultFrameDelay.
func NewSequence(frames []*frame.Frame, delays []time.Duration) (*Sequence, error) {
	if len(frames) == 0 {
		return nil, ErrEmpty
	}
	w, h := frames[0].Width, frames[0].Height
	s := &Sequence{
		frames: frames,
		delays: make([]time.Duration, len(frames)),
		now:    time.Now,
		cache:  newScaledCache(),
	}
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if f.Width != w || f.Height != h {
			return nil, fmt.Errorf("frame %d is %dx%d, expected %dx%d", i, f.Width, f.Height, w, h)
		}
		d := DefaultFrameDelay
		if i < len(delays) && delays[i] > 0 {
			d = delays[i]
		}
		s.delays[i] = d
		s.total += d
	}
	s.start = s.now()
	return s, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *Sequence) SetClock(now func() time.Time) {
	s.now = now
	s.start = now()
}

// Index returns the frame index for the current time.
func (s *Sequence) Index() int {
	pos := s.now().Sub(s.start) % s.total
	if pos < 0 {
		pos += s.total
	}
	for i, d := range s.delays {
		if pos < d {
			return i
		}
		pos -= d
	}
	return len(s.frames) - 1
}

// Frame returns the current frame scaled to width x height.
func (s *Sequence) Frame(width, height int) (*frame.Frame, error) {
	return s.cache.get(s.frames[s.Index()], width, height)
}

// Size returns the native dimensions.
func (s *Sequence) Size() (int, int) {
	return s.frames[0].Width, s.frames[0].Height
}

// Len returns the number of frames.
func (s *Sequence) Len() int {
	return len(s.frames)
}

// Close is a no-op.
func (s *Sequence) Close() error {
	return nil
}

// Video plays a decoded video through a capture source, typically a looping
// file opened with capture/gstcapture.
type Video struct {
	src    capture.FrameSource
	scaler *frame.Scaler

	mu         sync.Mutex
	lastSource *frame.Frame
	lastScaled *frame.Frame
}

// OpenVideo opens uri through opener with looping enabled.
func OpenVideo(ctx context.Context, opener capture.Opener, uri string) (*Video, error) {
	c := capture.MinimalConstraints().WithDevice(uri)
	c.Loop = true
	src, err := opener.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to open background video: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "OpenVideo",
		"uri":      uri,
	}).Info("Background video opened")
	return NewVideo(src), nil
}

// NewVideo wraps an open frame source.
func NewVideo(src capture.FrameSource) *Video {
	return &Video{src: src, scaler: frame.NewScaler()}
}

// Frame returns the newest decoded frame scaled to width x height.
func (v *Video) Frame(width, height int) (*frame.Frame, error) {
	f, err := v.src.CurrentFrame()
	if err != nil {
		return nil, err
	}
	if f.Width == width && f.Height == height {
		return f, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lastSource == f && v.lastScaled.Width == width && v.lastScaled.Height == height {
		return v.lastScaled, nil
	}
	scaled, err := v.scaler.Scale(f, width, height)
	if err != nil {
		return nil, err
	}
	v.lastSource, v.lastScaled = f, scaled
	return scaled, nil
}

// Size returns the dimensions of the newest frame, or zero before the first.
func (v *Video) Size() (int, int) {
	f, err := v.src.CurrentFrame()
	if err != nil {
		return 0, 0
	}
	return f.Width, f.Height
}

// Close releases the underlying source.
func (v *Video) Close() error {
	return v.src.Close()
}
