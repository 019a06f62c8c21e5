package gstgl

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/opd-ai/chromakey/gpu"
	"github.com/opd-ai/chromakey/limits"
)

const (
	probeSize    = 16
	drawTimeout  = 2 * time.Second
	startTimeout = 3 * time.Second
)

// Device is a gpu.Device backed by a GStreamer GL pipeline.
type Device struct {
	mu sync.Mutex

	width  int
	height int

	pipeline *gst.Pipeline
	src      *app.Source
	shader   *gst.Element
	sink     *app.Sink

	packed   []byte
	out      []byte
	ready    chan struct{}
	uniforms gpu.Uniforms
	closed   bool
}

// Open creates a GL device and verifies the GL context and shader program by
// running a small probe frame. It satisfies gpu.Opener.
func Open() (gpu.Device, error) {
	gst.Init(nil)

	d := &Device{ready: make(chan struct{}, 1)}
	if err := d.Resize(probeSize, probeSize); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.Draw(gpu.Uniforms{Threshold: 0.4, Smoothness: 0.1, Spill: 0.1}, make([]byte, probeSize*probeSize*4)); err != nil {
		d.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "gstgl.Open",
	}).Info("GL shader device ready")
	return d, nil
}

// Name identifies the backend.
func (d *Device) Name() string {
	return "gstreamer-gl"
}

// Resize rebuilds the pipeline for a new frame size. It is a no-op when the
// size is unchanged.
func (d *Device) Resize(width, height int) error {
	if err := limits.ValidateFrameDimensions(width, height); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.ErrDeviceClosed
	}
	if d.pipeline != nil && width == d.width && height == d.height {
		return nil
	}

	d.teardown()
	if err := d.build(width, height); err != nil {
		d.teardown()
		return err
	}
	return nil
}

func (d *Device) build(width, height int) error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("%w: failed to create pipeline: %v", gpu.ErrContextUnavailable, err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("%w: failed to create appsrc: %v", gpu.ErrContextUnavailable, err)
	}
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGBA,width=%d,height=%d,framerate=0/1", width*2, height)))
	src.SetProperty("format", gst.FormatTime)
	src.SetProperty("is-live", true)

	names := []string{"glupload", "glcolorconvert", "glshader", "glcolorconvert", "gldownload", "videocrop", "capsfilter"}
	elems := make([]*gst.Element, len(names))
	for i, name := range names {
		elems[i], err = gst.NewElement(name)
		if err != nil {
			return fmt.Errorf("%w: missing element %s: %v", gpu.ErrContextUnavailable, name, err)
		}
	}
	shader, crop, caps := elems[2], elems[5], elems[6]
	shader.SetProperty("fragment", gpu.PackedFragmentSource)
	if err := setUniforms(shader, d.uniforms); err != nil {
		return fmt.Errorf("%w: %v", gpu.ErrContextUnavailable, err)
	}
	crop.SetProperty("right", width)
	caps.SetProperty("caps", gst.NewCapsFromString("video/x-raw,format=RGBA"))

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("%w: failed to create appsink: %v", gpu.ErrContextUnavailable, err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	all := append([]*gst.Element{src.Element}, elems...)
	all = append(all, sink.Element)
	pipeline.AddMany(all...)
	if err := gst.ElementLinkMany(all...); err != nil {
		return fmt.Errorf("%w: failed to link GL pipeline: %v", gpu.ErrContextUnavailable, err)
	}

	d.pipeline = pipeline
	d.src = src
	d.shader = shader
	d.sink = sink
	d.width, d.height = width, height
	d.packed = make([]byte, width*2*height*4)
	d.out = make([]byte, width*height*4)

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: failed to start GL pipeline: %v", gpu.ErrContextUnavailable, err)
	}
	if err := d.pollBus(startTimeout / 10); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Device.build",
		"width":    width,
		"height":   height,
	}).Debug("GL pipeline playing")
	return nil
}

func (d *Device) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	data := buffer.Map(gst.MapRead).Bytes()
	if len(data) == len(d.out) {
		copy(d.out, data)
	}
	buffer.Unmap()

	select {
	case d.ready <- struct{}{}:
	default:
	}
	return gst.FlowOK
}

// pollBus drains pending bus messages and converts the first error.
func (d *Device) pollBus(wait time.Duration) error {
	bus := d.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(wait)
		if msg == nil {
			return nil
		}
		wait = 0
		switch msg.Type() {
		case gst.MessageError:
			err := classifyGLError(msg.ParseError())
			logrus.WithFields(logrus.Fields{
				"function": "Device.pollBus",
				"error":    err.Error(),
			}).Error("GL pipeline error")
			return err
		case gst.MessageEOS:
			return fmt.Errorf("GL pipeline reached end of stream")
		}
	}
}

// UploadForeground copies pix into the left half of the packed texture.
func (d *Device) UploadForeground(pix []byte) error {
	return d.pack(pix, false)
}

// UploadBackground copies pix into the right half of the packed texture.
func (d *Device) UploadBackground(pix []byte) error {
	return d.pack(pix, true)
}

func (d *Device) pack(pix []byte, right bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.ErrDeviceClosed
	}
	if d.pipeline == nil {
		return gpu.ErrNotSized
	}
	row := d.width * 4
	if len(pix) != row*d.height {
		return gpu.ErrTextureSize
	}
	offset := 0
	if right {
		offset = row
	}
	for y := 0; y < d.height; y++ {
		copy(d.packed[y*row*2+offset:y*row*2+offset+row], pix[y*row:(y+1)*row])
	}
	return nil
}

// Draw pushes the packed texture through the shader and waits for the
// cropped result.
func (d *Device) Draw(u gpu.Uniforms, dst []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return gpu.ErrDeviceClosed
	}
	if d.pipeline == nil {
		return gpu.ErrNotSized
	}
	if len(dst) != len(d.out) {
		return gpu.ErrTextureSize
	}

	if u != d.uniforms {
		if err := setUniforms(d.shader, u); err != nil {
			return err
		}
		d.uniforms = u
	}

	// discard a stale signal from a previous timed-out draw
	select {
	case <-d.ready:
	default:
	}

	if ret := d.src.PushBuffer(gst.NewBufferFromBytes(d.packed)); ret != gst.FlowOK {
		if err := d.pollBus(0); err != nil {
			return err
		}
		return fmt.Errorf("push buffer failed: %v", ret)
	}

	timer := time.NewTimer(drawTimeout)
	defer timer.Stop()
	select {
	case <-d.ready:
	case <-timer.C:
		if err := d.pollBus(0); err != nil {
			return err
		}
		return gpu.ErrDrawTimeout
	}

	copy(dst, d.out)
	return nil
}

// setUniforms hands the parameters to the linked program without recompiling it.
func setUniforms(shader *gst.Element, u gpu.Uniforms) error {
	st := gst.NewStructureFromString(gpu.UniformStructure(u))
	if st == nil {
		return fmt.Errorf("invalid uniforms %+v", u)
	}
	return shader.SetProperty("uniforms", st)
}

// Close stops the pipeline. It is safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.teardown()
	return nil
}

func (d *Device) teardown() {
	if d.pipeline == nil {
		return
	}
	if d.src != nil {
		d.src.EndStream()
	}
	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Device.teardown",
			"error":    err.Error(),
		}).Warn("Failed to stop GL pipeline")
	}
	d.pipeline = nil
	d.src = nil
	d.shader = nil
	d.sink = nil
}
