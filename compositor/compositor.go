package compositor

import (
	"fmt"
	"strings"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/keying"
)

// Strategy names a compositing implementation.
type Strategy string

const (
	StrategyHardware Strategy = "hardware"
	StrategySoftware Strategy = "software"
	StrategySimple   Strategy = "simple"
)

// ParseStrategy converts a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyHardware, StrategySoftware, StrategySimple:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Result is a composited frame plus the per-pixel foreground coverage
// (0 = background, 255 = foreground) in row-major order.
type Result struct {
	Frame *frame.Frame
	Mask  []uint8
}

// Compositor keys fg against settings and fills keyed pixels from bg.
// Implementations never modify fg or bg. A background of different size is
// scaled to the foreground first. The output alpha channel is opaque.
type Compositor interface {
	Composite(fg, bg *frame.Frame, settings keying.Settings) (*Result, error)
	Strategy() Strategy
	Close() error
}

// WarningHandler receives non-fatal conditions such as a strategy fallback.
type WarningHandler func(msg string, err error)

// prepare validates inputs and returns a background matching fg in size.
func prepare(fg, bg *frame.Frame, cache *backgroundCache) (*frame.Frame, error) {
	if fg == nil || bg == nil {
		return nil, ErrNilFrame
	}
	if err := fg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid foreground: %w", err)
	}
	if err := bg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid background: %w", err)
	}
	if fg.SameSize(bg) {
		return bg, nil
	}
	return cache.scaled(bg, fg.Width, fg.Height)
}

// newOutput allocates the composite frame carrying fg's metadata.
func newOutput(fg *frame.Frame) *frame.Frame {
	return &frame.Frame{
		Seq:       fg.Seq,
		Timestamp: fg.Timestamp,
		Width:     fg.Width,
		Height:    fg.Height,
		Pix:       make([]byte, len(fg.Pix)),
		TraceID:   fg.TraceID,
	}
}
