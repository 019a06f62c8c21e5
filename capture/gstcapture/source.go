package gstcapture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/opd-ai/chromakey/capture"
	"github.com/opd-ai/chromakey/frame"
)

// DefaultDevice is used when constraints name no device.
const DefaultDevice = "/dev/video0"

// Opener opens GStreamer frame sources. It satisfies capture.Opener.
type Opener struct{}

// slot holds the newest frame and whether a reader has taken it.
type slot struct {
	frame *frame.Frame
	read  atomic.Bool
}

// Source is a running capture pipeline.
type Source struct {
	capture.Releaser

	device   string
	loop     bool
	pipeline *gst.Pipeline

	latest  atomic.Pointer[slot]
	seq     atomic.Uint64
	dropped atomic.Uint64
	failure atomic.Pointer[capture.Error]

	first     chan struct{}
	firstOnce sync.Once

	cancel context.CancelFunc
	done   chan struct{}
}

// Open builds and starts the pipeline, then waits for the first frame or
// for ctx to expire.
func (Opener) Open(ctx context.Context, c capture.Constraints) (capture.FrameSource, error) {
	gst.Init(nil)

	device := c.Device
	if device == "" {
		device = DefaultDevice
	}

	s := &Source{
		device: device,
		loop:   c.Loop,
		first:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := s.build(c); err != nil {
		return nil, err
	}

	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		s.pipeline.SetState(gst.StateNull)
		return nil, capture.NewError(capture.KindUnknown, device, err)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.monitor(monitorCtx)

	select {
	case <-s.first:
		logrus.WithFields(logrus.Fields{
			"function":    "Opener.Open",
			"device":      device,
			"constraints": c.String(),
		}).Info("Capture pipeline delivering frames")
		return s, nil
	case <-s.done:
		err := s.failure.Load()
		s.Close()
		if err == nil {
			return nil, capture.NewError(capture.KindNoDevice, device, fmt.Errorf("stream ended before first frame"))
		}
		return nil, err
	case <-ctx.Done():
		s.Close()
		return nil, capture.NewError(capture.KindTimeout, device, ctx.Err())
	}
}

func (s *Source) build(c capture.Constraints) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	rate, err := gst.NewElement("videorate")
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	rate.SetProperty("drop-only", true)

	filter, err := gst.NewElement("capsfilter")
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	filter.SetProperty("caps", gst.NewCapsFromString(capsFor(c)))

	sink, err := app.NewAppSink()
	if err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	sink.SetProperty("sync", isURI(s.device))
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)
	sink.SetCallbacks(&app.SinkCallbacks{NewSampleFunc: s.onSample})

	var src *gst.Element
	if isURI(s.device) {
		src, err = gst.NewElement("uridecodebin")
		if err != nil {
			return capture.NewError(capture.KindUnknown, s.device, err)
		}
		src.SetProperty("uri", s.device)
		src.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
			sinkPad := convert.GetStaticPad("sink")
			if sinkPad == nil || sinkPad.IsLinked() {
				return
			}
			caps := pad.GetCurrentCaps()
			if caps == nil || !strings.HasPrefix(caps.String(), "video/") {
				return
			}
			if ret := pad.Link(sinkPad); ret != gst.PadLinkOK {
				logrus.WithFields(logrus.Fields{
					"function": "Source.build",
					"device":   s.device,
					"result":   ret,
				}).Warn("Failed to link decoded video pad")
			}
		})
	} else {
		src, err = gst.NewElement("v4l2src")
		if err != nil {
			return capture.NewError(capture.KindUnknown, s.device, err)
		}
		src.SetProperty("device", s.device)
	}

	pipeline.AddMany(src, convert, scale, rate, filter, sink.Element)
	if err := gst.ElementLinkMany(convert, scale, rate, filter, sink.Element); err != nil {
		return capture.NewError(capture.KindUnknown, s.device, err)
	}
	if !isURI(s.device) {
		if err := src.Link(convert); err != nil {
			return capture.NewError(capture.KindUnknown, s.device, err)
		}
	}

	s.pipeline = pipeline
	return nil
}

// capsFor pins RGBA and the ideal size and rate. videoscale and videorate
// adapt whatever the device negotiates.
func capsFor(c capture.Constraints) string {
	caps := "video/x-raw,format=RGBA"
	if c.Width.Ideal > 0 && c.Height.Ideal > 0 {
		caps += fmt.Sprintf(",width=%d,height=%d", c.Width.Ideal, c.Height.Ideal)
	}
	if c.FrameRate.Ideal > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", c.FrameRate.Ideal)
	}
	return caps
}

func isURI(device string) bool {
	return strings.Contains(device, "://")
}

func (s *Source) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	width, height, ok := sampleSize(sample)
	if !ok {
		return gst.FlowOK
	}

	data := buffer.Map(gst.MapRead).Bytes()
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	if len(pix) != width*height*4 {
		s.dropped.Add(1)
		return gst.FlowOK
	}

	f := &frame.Frame{
		Seq:       s.seq.Add(1),
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Pix:       pix,
		TraceID:   uuid.New().String(),
	}
	s.publish(f)
	return gst.FlowOK
}

// publish makes f the newest frame. The frame it replaces counts as dropped
// only if no reader ever saw it.
func (s *Source) publish(f *frame.Frame) {
	if old := s.latest.Swap(&slot{frame: f}); old != nil && old.read.CompareAndSwap(false, true) {
		s.dropped.Add(1)
	}
	s.firstOnce.Do(func() { close(s.first) })
}

func sampleSize(sample *gst.Sample) (int, int, bool) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	st := caps.GetStructureAt(0)
	w, err := st.GetValue("width")
	if err != nil {
		return 0, 0, false
	}
	h, err := st.GetValue("height")
	if err != nil {
		return 0, 0, false
	}
	width, ok1 := w.(int)
	height, ok2 := h.(int)
	return width, height, ok1 && ok2
}

// monitor watches the bus until the source is closed. It records the first
// error and restarts looping file sources at end of stream.
func (s *Source) monitor(ctx context.Context) {
	defer close(s.done)
	bus := s.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			if s.loop && s.pipeline.SeekSimple(0, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
				logrus.WithFields(logrus.Fields{
					"function": "Source.monitor",
					"device":   s.device,
				}).Debug("Looping source")
				continue
			}
			s.failure.CompareAndSwap(nil, capture.NewError(capture.KindNoDevice, s.device, fmt.Errorf("end of stream")))
			return
		case gst.MessageError:
			cerr := classify(msg.ParseError(), s.device)
			s.failure.CompareAndSwap(nil, cerr)
			logrus.WithFields(logrus.Fields{
				"function": "Source.monitor",
				"device":   s.device,
				"kind":     cerr.Kind.String(),
				"error":    cerr.Error(),
			}).Error("Capture pipeline error")
			return
		}
	}
}

// CurrentFrame returns the newest frame.
func (s *Source) CurrentFrame() (*frame.Frame, error) {
	if s.Released() {
		return nil, capture.NewError(capture.KindClosed, s.device, nil)
	}
	if err := s.failure.Load(); err != nil {
		return nil, err
	}
	sl := s.latest.Load()
	if sl == nil {
		return nil, capture.ErrNoFrame
	}
	sl.read.Store(true)
	return sl.frame, nil
}

// Dropped returns how many frames were replaced before being read. It
// satisfies capture.DropCounter.
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops the pipeline and releases the device.
func (s *Source) Close() error {
	return s.Release(func() error {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		err := s.pipeline.SetState(gst.StateNull)
		logrus.WithFields(logrus.Fields{
			"function": "Source.Close",
			"device":   s.device,
			"frames":   s.seq.Load(),
			"dropped":  s.dropped.Load(),
		}).Info("Capture device released")
		return err
	})
}
