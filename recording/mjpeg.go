package recording

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
)

// DefaultJPEGQuality is used by NewRegistry.
const DefaultJPEGQuality = 80

const frameQueueSize = 8

// MJPEGEncoder produces a raw Motion-JPEG stream: back-to-back JPEG images,
// grouped into chunks by frame timestamp.
type MJPEGEncoder struct {
	quality int

	mu      sync.Mutex
	frames  chan *frame.Frame
	chunks  chan Chunk
	done    chan struct{}
	stopped bool
	err     error
	dropped atomic.Uint64
}

// NewMJPEGEncoder creates an encoder with the given JPEG quality (1-100).
func NewMJPEGEncoder(quality int) *MJPEGEncoder {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	return &MJPEGEncoder{quality: quality}
}

// Start begins encoding.
func (e *MJPEGEncoder) Start(ctx context.Context, cfg EncoderConfig) (<-chan Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frames != nil {
		return nil, ErrAlreadyRecording
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = time.Second
	}

	e.frames = make(chan *frame.Frame, frameQueueSize)
	e.chunks = make(chan Chunk, 4)
	e.done = make(chan struct{})
	go e.run(ctx, cfg.ChunkInterval)

	logrus.WithFields(logrus.Fields{
		"function":       "MJPEGEncoder.Start",
		"quality":        e.quality,
		"chunk_interval": cfg.ChunkInterval,
	}).Debug("MJPEG encoder started")
	return e.chunks, nil
}

// WriteFrame queues a frame. When the queue is full the frame is dropped.
func (e *MJPEGEncoder) WriteFrame(f *frame.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frames == nil || e.stopped {
		return ErrEncoderStopped
	}
	select {
	case <-e.done:
		return e.err
	default:
	}
	select {
	case e.frames <- f:
	default:
		e.dropped.Add(1)
	}
	return nil
}

// Stop flushes pending frames and closes the chunk channel.
func (e *MJPEGEncoder) Stop() error {
	e.mu.Lock()
	if e.frames == nil {
		e.mu.Unlock()
		return ErrNotRecording
	}
	if !e.stopped {
		e.stopped = true
		close(e.frames)
	}
	done := e.done
	e.mu.Unlock()

	<-done
	return nil
}

// Err returns the failure that ended encoding, if any.
func (e *MJPEGEncoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Dropped returns the number of frames skipped because the queue was full.
// It satisfies DropCounter.
func (e *MJPEGEncoder) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *MJPEGEncoder) run(ctx context.Context, interval time.Duration) {
	defer close(e.done)
	defer close(e.chunks)

	var (
		buf        bytes.Buffer
		chunkStart time.Time
		seq        int
	)

	emit := func() bool {
		if buf.Len() == 0 {
			return true
		}
		seq++
		c := Chunk{Seq: seq, Data: append([]byte(nil), buf.Bytes()...)}
		buf.Reset()
		select {
		case e.chunks <- c:
			return true
		case <-ctx.Done():
			e.fail(ctx.Err())
			return false
		}
	}

	for f := range e.frames {
		if !chunkStart.IsZero() && f.Timestamp.Sub(chunkStart) >= interval {
			if !emit() {
				e.drain()
				return
			}
			chunkStart = time.Time{}
		}
		if chunkStart.IsZero() {
			chunkStart = f.Timestamp
		}

		if err := e.encode(&buf, f); err != nil {
			e.fail(err)
			e.drain()
			return
		}
	}
	emit()
}

func (e *MJPEGEncoder) encode(buf *bytes.Buffer, f *frame.Frame) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("frame %d: %w", f.Seq, err)
	}
	return jpeg.Encode(buf, f.Image(), &jpeg.Options{Quality: e.quality})
}

func (e *MJPEGEncoder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
	logrus.WithFields(logrus.Fields{
		"function": "MJPEGEncoder.run",
		"error":    err.Error(),
	}).Error("MJPEG encoding failed")
}

// drain discards queued frames so writers never block after a failure.
func (e *MJPEGEncoder) drain() {
	go func() {
		for range e.frames {
		}
	}()
}
