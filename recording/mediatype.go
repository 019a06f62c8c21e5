package recording

import (
	"fmt"
	"mime"
	"strings"
)

// Media types produced by the built-in encoders.
const (
	MediaTypeWebM  = "video/webm"
	MediaTypeMP4   = "video/mp4"
	MediaTypeMJPEG = "video/x-motion-jpeg"
)

// MediaType is a parsed container type with an optional codec list, for
// example video/webm;codecs=vp9.
type MediaType struct {
	Base   string
	Codecs []string
}

// ParseMediaType parses a media type string. Codec names are lower-cased.
func ParseMediaType(s string) (MediaType, error) {
	base, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MediaType{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedMediaType, s, err)
	}
	mt := MediaType{Base: base}
	if codecs := params["codecs"]; codecs != "" {
		for _, c := range strings.Split(codecs, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				mt.Codecs = append(mt.Codecs, c)
			}
		}
	}
	return mt, nil
}

// Codec returns the first codec, or def when none is given.
func (m MediaType) Codec(def string) string {
	if len(m.Codecs) == 0 {
		return def
	}
	return m.Codecs[0]
}

func (m MediaType) String() string {
	if len(m.Codecs) == 0 {
		return m.Base
	}
	return fmt.Sprintf("%s;codecs=%s", m.Base, strings.Join(m.Codecs, ","))
}

// FileExtension returns a conventional extension for the container.
func FileExtension(mediaType string) string {
	mt, err := ParseMediaType(mediaType)
	if err != nil {
		return ".bin"
	}
	switch mt.Base {
	case MediaTypeWebM:
		return ".webm"
	case MediaTypeMP4:
		return ".mp4"
	case MediaTypeMJPEG:
		return ".mjpeg"
	default:
		return ".bin"
	}
}
