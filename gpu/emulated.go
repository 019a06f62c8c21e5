package gpu

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/limits"
)

// Emulated evaluates the fragment program on the CPU using float32
// arithmetic, mirroring what a GLES2 driver computes per fragment.
type Emulated struct {
	mu         sync.Mutex
	width      int
	height     int
	foreground []byte
	background []byte
	closed     bool
	allocs     int
}

// NewEmulated creates an emulated device. Textures are allocated on Resize.
func NewEmulated() *Emulated {
	return &Emulated{}
}

// OpenEmulated is an Opener for the emulated backend.
func OpenEmulated() (Device, error) {
	return NewEmulated(), nil
}

// Name identifies the backend.
func (e *Emulated) Name() string {
	return "emulated"
}

// Resize allocates both textures for the given size.
func (e *Emulated) Resize(width, height int) error {
	if err := limits.ValidateFrameDimensions(width, height); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrDeviceClosed
	}
	if width == e.width && height == e.height && e.foreground != nil {
		return nil
	}

	size := width * height * limits.BytesPerPixel
	e.foreground = make([]byte, size)
	e.background = make([]byte, size)
	e.width, e.height = width, height
	e.allocs++

	logrus.WithFields(logrus.Fields{
		"function": "Emulated.Resize",
		"width":    width,
		"height":   height,
	}).Debug("Allocated textures")
	return nil
}

// UploadForeground copies pix into the foreground texture.
func (e *Emulated) UploadForeground(pix []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upload(e.foreground, pix)
}

// UploadBackground copies pix into the background texture.
func (e *Emulated) UploadBackground(pix []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upload(e.background, pix)
}

func (e *Emulated) upload(tex, pix []byte) error {
	if e.closed {
		return ErrDeviceClosed
	}
	if tex == nil {
		return ErrNotSized
	}
	if len(pix) != len(tex) {
		return ErrTextureSize
	}
	copy(tex, pix)
	return nil
}

// Draw runs the fragment program over every pixel.
func (e *Emulated) Draw(u Uniforms, dst []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrDeviceClosed
	}
	if e.foreground == nil {
		return ErrNotSized
	}
	if len(dst) != len(e.foreground) {
		return ErrTextureSize
	}

	fg, bg := e.foreground, e.background
	for i := 0; i < len(dst); i += 4 {
		keyPixel(u, fg[i:i+4:i+4], bg[i:i+4:i+4], dst[i:i+4:i+4])
	}
	return nil
}

// TextureAllocations returns how many times textures were (re)allocated.
func (e *Emulated) TextureAllocations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocs
}

// Close releases the textures. It is safe to call more than once.
func (e *Emulated) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.foreground = nil
	e.background = nil
	return nil
}

// keyPixel is the Go rendition of keyBody in shader.go.
func keyPixel(u Uniforms, fg, bg, out []byte) {
	r := float32(fg[0]) / 255
	g := float32(fg[1]) / 255
	b := float32(fg[2]) / 255

	greenness := g - max(r, b)
	lo := u.Threshold - u.Smoothness
	hi := max(u.Threshold+u.Smoothness, lo+0.0001)
	keyMask := smoothstep(lo, hi, greenness)

	if keyMask < 1 {
		spillAmount := max(0, greenness-u.Spill)
		r = mix(r, r+spillAmount*0.5, u.Spill)
		b = mix(b, b+spillAmount*0.5, u.Spill)
	}

	coverage := 1 - keyMask
	out[0] = unorm(mix(float32(bg[0])/255, r, coverage))
	out[1] = unorm(mix(float32(bg[1])/255, g, coverage))
	out[2] = unorm(mix(float32(bg[2])/255, b, coverage))
	out[3] = unorm(coverage)
}

func smoothstep(e0, e1, x float32) float32 {
	t := (x - e0) / (e1 - e0)
	t = min(max(t, 0), 1)
	return t * t * (3 - 2*t)
}

func mix(x, y, a float32) float32 {
	return x*(1-a) + y*a
}

// unorm converts a [0,1] color to 8 bits the way a UNORM8 render target does.
func unorm(v float32) uint8 {
	v = min(max(v, 0), 1)
	return uint8(v*255 + 0.5)
}
