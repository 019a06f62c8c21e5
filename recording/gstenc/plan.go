package gstenc

import (
	"fmt"

	"github.com/opd-ai/chromakey/recording"
)

// elementSpec describes one pipeline element and its properties.
type elementSpec struct {
	factory string
	props   map[string]interface{}
}

// plan is the encoder and muxer pair for one media type.
type plan struct {
	codec   string
	encoder elementSpec
	parser  string
	muxer   elementSpec
}

func (p plan) factories() []string {
	names := []string{p.encoder.factory, p.muxer.factory}
	if p.parser != "" {
		names = append(names, p.parser)
	}
	return names
}

// planFor maps a media type to GStreamer elements. video/webm without a
// codec uses VP8 and video/mp4 uses H.264.
func planFor(mt recording.MediaType, frameRate int) (plan, error) {
	if frameRate <= 0 {
		frameRate = recording.DefaultFrameRate
	}
	switch mt.Base {
	case recording.MediaTypeWebM:
		switch codec := mt.Codec("vp8"); codec {
		case "vp8", "vp9":
			return plan{
				codec: codec,
				encoder: elementSpec{factory: codec + "enc", props: map[string]interface{}{
					"deadline":          int64(1),
					"keyframe-max-dist": frameRate,
					"cpu-used":          4,
				}},
				muxer: elementSpec{factory: "webmmux", props: map[string]interface{}{
					"streamable": true,
				}},
			}, nil
		default:
			return plan{}, fmt.Errorf("%w: webm codec %q", recording.ErrUnsupportedMediaType, codec)
		}
	case recording.MediaTypeMP4:
		switch codec := mt.Codec("avc1"); codec {
		case "avc1", "h264":
			return plan{
				codec: "h264",
				encoder: elementSpec{factory: "x264enc", props: map[string]interface{}{
					"tune":         4, // zerolatency
					"key-int-max":  uint(frameRate),
					"speed-preset": 1, // ultrafast
				}},
				parser: "h264parse",
				muxer: elementSpec{factory: "mp4mux", props: map[string]interface{}{
					"fragment-duration": uint(1000),
					"streamable":        true,
				}},
			}, nil
		default:
			return plan{}, fmt.Errorf("%w: mp4 codec %q", recording.ErrUnsupportedMediaType, codec)
		}
	}
	return plan{}, fmt.Errorf("%w: %s", recording.ErrUnsupportedMediaType, mt)
}

// rawCaps describes the frames pushed into appsrc.
func rawCaps(cfg recording.EncoderConfig) string {
	rate := cfg.FrameRate
	if rate <= 0 {
		rate = recording.DefaultFrameRate
	}
	return fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1", cfg.Width, cfg.Height, rate)
}
