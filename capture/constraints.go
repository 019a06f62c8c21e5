package capture

import (
	"fmt"

	"github.com/opd-ai/chromakey/platform"
)

// Range is a preferred value with an upper bound. Zero means unconstrained.
type Range struct {
	Ideal int `yaml:"ideal" json:"ideal"`
	Max   int `yaml:"max" json:"max"`
}

// Constraints describe the video a source should deliver.
type Constraints struct {
	// Device is a device path (/dev/video0), a URI (file:///clip.mp4) or
	// empty for the default camera.
	Device    string `yaml:"device" json:"device"`
	Width     Range  `yaml:"width" json:"width"`
	Height    Range  `yaml:"height" json:"height"`
	FrameRate Range  `yaml:"frame_rate" json:"frameRate"`

	// Loop restarts file sources at end of stream.
	Loop bool `yaml:"loop" json:"loop"`
}

// PreferredConstraints are the presets per host class: 1280x720 at 30fps
// ideal, capped at 1920x1080 except on iOS where 1280x720 is the cap.
func PreferredConstraints(class platform.DeviceClass) Constraints {
	c := Constraints{
		Width:     Range{Ideal: 1280, Max: 1920},
		Height:    Range{Ideal: 720, Max: 1080},
		FrameRate: Range{Ideal: 30, Max: 30},
	}
	if class == platform.IOS {
		c.Width.Max = 1280
		c.Height.Max = 720
	}
	return c
}

// MinimalConstraints accept any video the device offers.
func MinimalConstraints() Constraints {
	return Constraints{}
}

// IsMinimal reports whether c places no limits on the video.
func (c Constraints) IsMinimal() bool {
	return c.Width == (Range{}) && c.Height == (Range{}) && c.FrameRate == (Range{})
}

// WithDevice returns a copy of c targeting device.
func (c Constraints) WithDevice(device string) Constraints {
	c.Device = device
	return c
}

// Admits reports whether a width x height stream satisfies the upper bounds.
func (c Constraints) Admits(width, height int) bool {
	if c.Width.Max > 0 && width > c.Width.Max {
		return false
	}
	if c.Height.Max > 0 && height > c.Height.Max {
		return false
	}
	return true
}

func (c Constraints) String() string {
	if c.IsMinimal() {
		return "any"
	}
	return fmt.Sprintf("%dx%d@%d (max %dx%d@%d)",
		c.Width.Ideal, c.Height.Ideal, c.FrameRate.Ideal,
		c.Width.Max, c.Height.Max, c.FrameRate.Max)
}
