package gstenc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/limits"
	"github.com/opd-ai/chromakey/recording"
)

const (
	busPollInterval = 50 * time.Millisecond
	eosTimeout      = 5 * time.Second
)

var errEncoderEOS = errors.New("encoder pipeline ended unexpectedly")

// Encoder is a recording.Encoder running a GStreamer pipeline.
type Encoder struct {
	mt   recording.MediaType
	plan plan

	mu       sync.Mutex
	pipeline *gst.Pipeline
	src      *app.Source
	pending  []byte
	chunks   chan recording.Chunk
	seq      int
	started  time.Time
	frameDur time.Duration
	frames   uint64
	stopping bool
	eos      chan struct{}
	done     chan struct{}
	err      error
	cancel   context.CancelFunc
}

// New creates an encoder for mt. It fails for media types without a plan.
func New(mt recording.MediaType) (recording.Encoder, error) {
	p, err := planFor(mt, 0)
	if err != nil {
		return nil, err
	}
	return &Encoder{mt: mt, plan: p}, nil
}

// Register adds webm and mp4 factories to reg for every plan whose elements
// are installed. It returns the registered base types.
func Register(reg *recording.Registry) []string {
	gst.Init(nil)

	var added []string
	candidates := []struct {
		base   string
		codecs []string
	}{
		{recording.MediaTypeMP4, []string{"avc1", "h264"}},
		{recording.MediaTypeWebM, []string{"vp8", "vp9"}},
	}
	for _, c := range candidates {
		var usable []string
		for _, codec := range c.codecs {
			p, err := planFor(recording.MediaType{Base: c.base, Codecs: []string{codec}}, 0)
			if err == nil && installed(p.factories()) {
				usable = append(usable, codec)
			}
		}
		if len(usable) == 0 {
			logrus.WithFields(logrus.Fields{
				"function":   "gstenc.Register",
				"media_type": c.base,
			}).Debug("No installed encoder for container, skipping")
			continue
		}
		reg.Register(c.base, usable, New)
		added = append(added, c.base)
	}
	return added
}

func installed(factories []string) bool {
	for _, name := range factories {
		if gst.Find(name) == nil {
			return false
		}
	}
	return true
}

// Start builds and plays the pipeline.
func (e *Encoder) Start(ctx context.Context, cfg recording.EncoderConfig) (<-chan recording.Chunk, error) {
	if err := limits.ValidateFrameDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline != nil {
		return nil, recording.ErrAlreadyRecording
	}

	p, err := planFor(e.mt, cfg.FrameRate)
	if err != nil {
		return nil, err
	}
	e.plan = p
	if err := e.build(cfg); err != nil {
		return nil, err
	}

	rate := cfg.FrameRate
	if rate <= 0 {
		rate = recording.DefaultFrameRate
	}
	e.frameDur = time.Second / time.Duration(rate)
	e.chunks = make(chan recording.Chunk, 16)
	e.eos = make(chan struct{})
	e.done = make(chan struct{})

	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		e.pipeline.SetState(gst.StateNull)
		e.pipeline = nil
		return nil, fmt.Errorf("failed to start encoder pipeline: %w", err)
	}

	interval := cfg.ChunkInterval
	if interval <= 0 {
		interval = time.Second
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(runCtx, interval)

	logrus.WithFields(logrus.Fields{
		"function":   "Encoder.Start",
		"media_type": e.mt.String(),
		"codec":      e.plan.codec,
		"width":      cfg.Width,
		"height":     cfg.Height,
	}).Info("GStreamer encoder started")
	return e.chunks, nil
}

func (e *Encoder) build(cfg recording.EncoderConfig) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return err
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return err
	}
	src.SetCaps(gst.NewCapsFromString(rawCaps(cfg)))
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", false)

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return err
	}
	chain := []*gst.Element{src.Element, convert}

	for _, spec := range []elementSpec{e.plan.encoder, {factory: e.plan.parser}, e.plan.muxer} {
		if spec.factory == "" {
			continue
		}
		elem, err := gst.NewElement(spec.factory)
		if err != nil {
			return fmt.Errorf("missing element %s: %w", spec.factory, err)
		}
		for k, v := range spec.props {
			if err := elem.SetProperty(k, v); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Encoder.build",
					"element":  spec.factory,
					"property": k,
					"error":    err.Error(),
				}).Debug("Encoder property not supported")
			}
		}
		chain = append(chain, elem)
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return err
	}
	sink.SetProperty("sync", false)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: e.onSample,
		EOSFunc:       func(*app.Sink) { e.signalEOS() },
	})
	chain = append(chain, sink.Element)

	pipeline.AddMany(chain...)
	if err := gst.ElementLinkMany(chain...); err != nil {
		return fmt.Errorf("failed to link encoder pipeline: %w", err)
	}

	e.pipeline = pipeline
	e.src = src
	return nil
}

func (e *Encoder) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	data := buffer.Map(gst.MapRead).Bytes()

	e.mu.Lock()
	e.pending = append(e.pending, data...)
	e.mu.Unlock()

	buffer.Unmap()
	return gst.FlowOK
}

func (e *Encoder) signalEOS() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.eos:
	default:
		close(e.eos)
	}
}

// WriteFrame pushes one frame with a presentation timestamp derived from
// the frame count.
func (e *Encoder) WriteFrame(f *frame.Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pipeline == nil || e.stopping {
		return recording.ErrEncoderStopped
	}
	if e.err != nil {
		return e.err
	}

	buf := gst.NewBufferFromBytes(f.Pix)
	buf.SetPresentationTimestamp(time.Duration(e.frames) * e.frameDur)
	buf.SetDuration(e.frameDur)
	e.frames++

	if ret := e.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("appsrc rejected frame: %v", ret)
	}
	return nil
}

// Stop sends end-of-stream, waits for the muxer to flush and closes the
// chunk channel.
func (e *Encoder) Stop() error {
	e.mu.Lock()
	if e.pipeline == nil {
		e.mu.Unlock()
		return recording.ErrNotRecording
	}
	first := !e.stopping
	e.stopping = true
	src, done := e.src, e.done
	e.mu.Unlock()

	if first {
		src.EndStream()
	}
	<-done
	return nil
}

// Err reports a pipeline failure.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// run emits accumulated bytes every interval and watches the bus.
func (e *Encoder) run(ctx context.Context, interval time.Duration) {
	defer close(e.done)
	defer close(e.chunks)
	defer e.teardown()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	bus := e.pipeline.GetPipelineBus()
	var eosDeadline <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			e.fail(ctx.Err())
			return
		case <-ticker.C:
			if !e.flush(ctx) {
				return
			}
		case <-e.eos:
			e.flush(ctx)
			return
		case <-eosDeadline:
			e.fail(fmt.Errorf("muxer did not flush within %s", eosTimeout))
			return
		default:
		}

		e.mu.Lock()
		stopping := e.stopping
		e.mu.Unlock()
		if stopping && eosDeadline == nil {
			eosDeadline = time.After(eosTimeout)
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			e.fail(fmt.Errorf("%s: %s", gerr.Error(), gerr.DebugString()))
			return
		case gst.MessageEOS:
			if !stopping {
				e.fail(errEncoderEOS)
				return
			}
			e.signalEOS()
		}
	}
}

func (e *Encoder) flush(ctx context.Context) bool {
	e.mu.Lock()
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return true
	}
	e.seq++
	c := recording.Chunk{Seq: e.seq, Data: e.pending}
	e.pending = nil
	e.mu.Unlock()

	select {
	case e.chunks <- c:
		return true
	case <-ctx.Done():
		e.fail(ctx.Err())
		return false
	}
}

func (e *Encoder) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Encoder.run",
		"media_type": e.mt.String(),
		"error":      err.Error(),
	}).Error("GStreamer encoder failed")
}

func (e *Encoder) teardown() {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline != nil {
		e.pipeline.SetState(gst.StateNull)
	}
	e.pending = nil
}
