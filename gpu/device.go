package gpu

import (
	"math"
)

// Uniforms are the per-draw parameters of the fragment program.
type Uniforms struct {
	Threshold  float32
	Smoothness float32
	Spill      float32
}

// Valid reports whether every uniform is a finite number.
func (u Uniforms) Valid() bool {
	for _, v := range []float32{u.Threshold, u.Smoothness, u.Spill} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Device is a programmable per-pixel compositor.
//
// Resize allocates textures; it is a no-op when the size is unchanged. The
// upload methods copy into the existing textures and Draw writes the
// composited RGBA output into dst, which must be width*height*4 bytes.
type Device interface {
	Name() string
	Resize(width, height int) error
	UploadForeground(pix []byte) error
	UploadBackground(pix []byte) error
	Draw(u Uniforms, dst []byte) error
	Close() error
}

// Opener creates a device. Failures to create a context or build the program
// are reported as ErrContextUnavailable, *CompileError or *LinkError.
type Opener func() (Device, error)
