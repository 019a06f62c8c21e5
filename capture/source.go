package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
)

// DefaultOpenTimeout bounds device acquisition when the context has no
// deadline of its own.
const DefaultOpenTimeout = 10 * time.Second

// FrameSource delivers the latest captured frame.
type FrameSource interface {
	// CurrentFrame returns the most recent frame. Returned frames must not
	// be modified. ErrNoFrame means nothing has been captured yet.
	CurrentFrame() (*frame.Frame, error)

	// Close releases the device. Calls after the first are no-ops.
	Close() error
}

// DropCounter is implemented by sources that can report frames replaced
// before anyone read them.
type DropCounter interface {
	Dropped() uint64
}

// Opener acquires a frame source for the given constraints.
type Opener interface {
	Open(ctx context.Context, c Constraints) (FrameSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, c Constraints) (FrameSource, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, c Constraints) (FrameSource, error) {
	return f(ctx, c)
}

// Open acquires a source with the preferred constraints and falls back to
// minimal constraints once if that fails. When both attempts fail the first
// failure is returned, since it describes the device the caller asked for.
// Timeouts and cancellation are not retried.
func Open(ctx context.Context, opener Opener, preferred Constraints) (FrameSource, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultOpenTimeout)
		defer cancel()
	}

	logger := logrus.WithFields(logrus.Fields{
		"function":    "capture.Open",
		"device":      preferred.Device,
		"constraints": preferred.String(),
	})

	src, err := openOnce(ctx, opener, preferred)
	if err == nil {
		logger.Info("Capture device acquired")
		return src, nil
	}
	if preferred.IsMinimal() || KindOf(err) == KindTimeout || KindOf(err) == KindClosed {
		logger.WithField("error", err.Error()).Error("Capture device acquisition failed")
		return nil, err
	}

	logger.WithField("error", err.Error()).Warn("Preferred constraints rejected, retrying with minimal constraints")

	src, fbErr := openOnce(ctx, opener, MinimalConstraints().WithDevice(preferred.Device))
	if fbErr == nil {
		logger.Info("Capture device acquired with minimal constraints")
		return src, nil
	}

	logger.WithFields(logrus.Fields{
		"error":          err.Error(),
		"fallback_error": fbErr.Error(),
	}).Error("Capture device acquisition failed")
	if KindOf(fbErr) == KindTimeout {
		return nil, fbErr
	}
	return nil, err
}

func openOnce(ctx context.Context, opener Opener, c Constraints) (FrameSource, error) {
	src, err := opener.Open(ctx, c)
	if err == nil {
		return src, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, NewError(KindTimeout, c.Device, err)
	}
	if errors.Is(err, context.Canceled) {
		return nil, NewError(KindClosed, c.Device, err)
	}
	var ce *Error
	if errors.As(err, &ce) {
		return nil, err
	}
	return nil, NewError(KindUnknown, c.Device, err)
}

// Releaser runs a release function exactly once. Backends embed it to make
// Close idempotent.
type Releaser struct {
	once     sync.Once
	mu       sync.RWMutex
	released bool
	err      error
}

// Release runs fn on the first call and returns its error on every call.
func (r *Releaser) Release(fn func() error) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.released = true
		r.mu.Unlock()
		r.err = fn()
	})
	return r.err
}

// Released reports whether Release has been called.
func (r *Releaser) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}
