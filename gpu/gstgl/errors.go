package gstgl

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/opd-ai/chromakey/gpu"
)

// classifyGLError maps a GStreamer bus error to the gpu init error types.
// go-gst's GError does not expose the domain, so classification relies on
// message keywords.
func classifyGLError(gerr *gst.GError) error {
	if gerr == nil {
		return fmt.Errorf("unknown GStreamer error")
	}
	msg := strings.ToLower(gerr.Error())
	debug := strings.ToLower(gerr.DebugString())
	text := gerr.Error() + ": " + gerr.DebugString()

	switch {
	case containsAny(msg, debug, "link"):
		return &gpu.LinkError{Log: text}
	case containsAny(msg, debug, "compile", "shader", "glsl"):
		return &gpu.CompileError{Stage: "fragment", Log: text}
	case containsAny(msg, debug, "context", "display", "egl", "glx", "opengl", "gl api"):
		return fmt.Errorf("%w: %s", gpu.ErrContextUnavailable, text)
	default:
		return fmt.Errorf("gl pipeline error: %s", text)
	}
}

func containsAny(msg, debug string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(msg, k) || strings.Contains(debug, k) {
			return true
		}
	}
	return false
}
