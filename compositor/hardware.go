package compositor

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/gpu"
	"github.com/opd-ai/chromakey/keying"
)

// Hardware composites with the greenness shader on a gpu.Device.
type Hardware struct {
	mu      sync.Mutex
	device  gpu.Device
	bgCache *backgroundCache
	closed  bool
}

// NewHardware opens a device. Any failure to bring the device up is returned
// as *ShaderInitError.
func NewHardware(open gpu.Opener) (*Hardware, error) {
	if open == nil {
		open = gpu.OpenEmulated
	}
	dev, err := open()
	if err != nil {
		return nil, &ShaderInitError{Backend: "unknown", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewHardware",
		"backend":  dev.Name(),
	}).Info("Hardware compositor initialized")

	return &Hardware{device: dev, bgCache: newBackgroundCache()}, nil
}

// Strategy returns StrategyHardware.
func (h *Hardware) Strategy() Strategy {
	return StrategyHardware
}

// Backend names the device in use.
func (h *Hardware) Backend() string {
	return h.device.Name()
}

// Composite uploads both frames into the device textures and runs the shader.
// Init failures surfacing on first use (for example a program that only fails
// to link once real caps are known) are reported as *ShaderInitError.
func (h *Hardware) Composite(fg, bg *frame.Frame, settings keying.Settings) (*Result, error) {
	bg, err := prepare(fg, bg, h.bgCache)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	settings = settings.Clamp()
	u := gpu.Uniforms{
		Threshold:  float32(settings.Threshold),
		Smoothness: float32(settings.Smoothness),
		Spill:      float32(settings.Spill),
	}

	out := newOutput(fg)
	if err := h.run(fg, bg, u, out.Pix); err != nil {
		if gpu.IsInitFailure(err) {
			return nil, &ShaderInitError{Backend: h.device.Name(), Err: err}
		}
		return nil, fmt.Errorf("hardware composite failed: %w", err)
	}

	// the shader writes foreground coverage into the alpha channel
	mask := make([]uint8, fg.Width*fg.Height)
	for p := range mask {
		mask[p] = out.Pix[p*4+3]
		out.Pix[p*4+3] = 255
	}

	return &Result{Frame: out, Mask: mask}, nil
}

func (h *Hardware) run(fg, bg *frame.Frame, u gpu.Uniforms, dst []byte) error {
	if err := h.device.Resize(fg.Width, fg.Height); err != nil {
		return err
	}
	if err := h.device.UploadForeground(fg.Pix); err != nil {
		return err
	}
	if err := h.device.UploadBackground(bg.Pix); err != nil {
		return err
	}
	return h.device.Draw(u, dst)
}

// Close releases the device.
func (h *Hardware) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.device.Close()
}
