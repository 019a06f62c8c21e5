package compositor

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/gpu"
	"github.com/opd-ai/chromakey/keying"
)

// FallbackWarning is delivered when the hardware path is replaced.
const FallbackWarning = "hardware path unavailable, used software fallback"

// Options configure New.
type Options struct {
	// Opener creates the shader device for the hardware strategy. Nil uses
	// the emulated device.
	Opener gpu.Opener

	// OnWarning receives the fallback warning. May be nil.
	OnWarning WarningHandler

	// OnFallback is called once when the hardware path is abandoned.
	OnFallback func(err error)
}

// New builds the compositor for strategy. The hardware strategy is wrapped so
// that a device failing to initialize, either now or on first use, is
// replaced by the software compositor instead of failing the session.
func New(strategy Strategy, opts Options) (Compositor, error) {
	switch strategy {
	case StrategySoftware:
		return NewSoftware(), nil
	case StrategySimple:
		return NewSimple(), nil
	case StrategyHardware:
		return newFallback(opts), nil
	default:
		return nil, ErrUnknownStrategy
	}
}

// Fallback runs the hardware compositor until it reports a *ShaderInitError,
// then switches to software for the rest of its life.
type Fallback struct {
	mu     sync.Mutex
	active Compositor
	opts   Options
}

func newFallback(opts Options) *Fallback {
	f := &Fallback{opts: opts}
	hw, err := NewHardware(opts.Opener)
	if err != nil {
		f.fallBack(err)
		return f
	}
	f.active = hw
	return f
}

// Strategy reports the strategy currently in use.
func (f *Fallback) Strategy() Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active.Strategy()
}

// Composite delegates to the active compositor. A shader init failure during
// the call switches to software and the same frame is composited there.
func (f *Fallback) Composite(fg, bg *frame.Frame, settings keying.Settings) (*Result, error) {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()

	res, err := active.Composite(fg, bg, settings)
	var sie *ShaderInitError
	if err == nil || !errors.As(err, &sie) {
		return res, err
	}

	f.mu.Lock()
	if f.active == active {
		active.Close()
		f.fallBack(err)
	}
	active = f.active
	f.mu.Unlock()

	return active.Composite(fg, bg, settings)
}

// fallBack must be called with mu held or before f is shared.
func (f *Fallback) fallBack(cause error) {
	logrus.WithFields(logrus.Fields{
		"function": "Fallback.fallBack",
		"error":    cause.Error(),
	}).Warn(FallbackWarning)

	f.active = NewSoftware()
	if f.opts.OnFallback != nil {
		f.opts.OnFallback(cause)
	}
	if f.opts.OnWarning != nil {
		f.opts.OnWarning(FallbackWarning, cause)
	}
}

// Close releases the active compositor.
func (f *Fallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active.Close()
}
