package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
)

// StaticSource plays back a fixed sequence of decoded frames at a fixed rate,
// looping at the end. It stands in for a camera in tests and headless runs.
type StaticSource struct {
	Releaser

	frames   []*frame.Frame
	interval time.Duration
	start    time.Time
	now      func() time.Time
	seq      atomic.Uint64
	onClose  func()
}

// NewStaticSource creates a source cycling through frames every interval.
// A single frame or a non-positive interval yields a still image.
func NewStaticSource(frames []*frame.Frame, interval time.Duration) (*StaticSource, error) {
	if len(frames) == 0 {
		return nil, NewError(KindNoDevice, "static", fmt.Errorf("no frames"))
	}
	for i, f := range frames {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	s := &StaticSource{
		frames:   frames,
		interval: interval,
		now:      time.Now,
	}
	s.start = s.now()
	return s, nil
}

// SetClock replaces the time source. Intended for tests.
func (s *StaticSource) SetClock(now func() time.Time) {
	s.now = now
	s.start = now()
}

// OnClose registers fn to run when the source is released.
func (s *StaticSource) OnClose(fn func()) {
	s.onClose = fn
}

// CurrentFrame returns the frame for the current playback position.
func (s *StaticSource) CurrentFrame() (*frame.Frame, error) {
	if s.Released() {
		return nil, NewError(KindClosed, "static", nil)
	}

	idx := 0
	if len(s.frames) > 1 && s.interval > 0 {
		idx = int(s.now().Sub(s.start)/s.interval) % len(s.frames)
	}

	// Pix is shared; frames are immutable once published.
	f := *s.frames[idx]
	f.Seq = s.seq.Add(1)
	f.Timestamp = s.now()
	return &f, nil
}

// Close releases the source.
func (s *StaticSource) Close() error {
	return s.Release(func() error {
		logrus.WithFields(logrus.Fields{
			"function": "StaticSource.Close",
			"frames":   len(s.frames),
		}).Debug("Static source released")
		if s.onClose != nil {
			s.onClose()
		}
		return nil
	})
}

// StaticOpener opens StaticSources over the same frames. Frames larger than
// the requested maximum are rejected as unsupported constraints, the way a
// camera without a matching mode would.
type StaticOpener struct {
	Frames   []*frame.Frame
	Interval time.Duration
}

// Open implements Opener.
func (o StaticOpener) Open(ctx context.Context, c Constraints) (FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(o.Frames) == 0 {
		return nil, NewError(KindNoDevice, c.Device, nil)
	}
	if f := o.Frames[0]; !c.Admits(f.Width, f.Height) {
		return nil, NewError(KindUnsupportedConstraints, c.Device,
			fmt.Errorf("source is %dx%d, constraints allow %s", f.Width, f.Height, c))
	}
	src, err := NewStaticSource(o.Frames, o.Interval)
	if err != nil {
		return nil, err
	}
	return src, nil
}
