package recording

import (
	"time"

	"github.com/opd-ai/chromakey/platform"
)

// Capabilities decide what a host records. Any non-empty media type the
// strategy returns must be accepted, so the Recorder falls back to the
// registry default for types it cannot encode.
type Capabilities interface {
	SupportsRecording() bool
	PreferredMediaType(class platform.DeviceClass) string
	PreferredChunkInterval(class platform.DeviceClass) time.Duration
}

// Preference lists per host class, best first.
var mediaPreferences = map[platform.DeviceClass][]string{
	platform.IOS:     {"video/mp4", "video/webm"},
	platform.Android: {"video/webm;codecs=vp8", "video/webm;codecs=h264", "video/webm"},
	platform.Desktop: {"video/webm;codecs=vp9", "video/webm;codecs=vp8", "video/webm"},
}

// DefaultCapabilities picks the first preferred type the registry supports.
type DefaultCapabilities struct {
	Registry *Registry
}

// SupportsRecording reports whether any encoder is registered.
func (c DefaultCapabilities) SupportsRecording() bool {
	return c.Registry != nil && c.Registry.Default() != ""
}

// PreferredMediaType returns the best supported type for class, or the
// registry default.
func (c DefaultCapabilities) PreferredMediaType(class platform.DeviceClass) string {
	if c.Registry == nil {
		return MediaTypeWebM
	}
	for _, mt := range mediaPreferences[class] {
		if c.Registry.Supports(mt) {
			return mt
		}
	}
	return c.Registry.Default()
}

// PreferredChunkInterval is 100ms on iOS and one second elsewhere.
func (c DefaultCapabilities) PreferredChunkInterval(class platform.DeviceClass) time.Duration {
	if class == platform.IOS {
		return 100 * time.Millisecond
	}
	return time.Second
}
