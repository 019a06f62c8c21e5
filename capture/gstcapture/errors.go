package gstcapture

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/opd-ai/chromakey/capture"
)

// classify maps a GStreamer error to a capture kind. go-gst's GError does not
// expose the error domain, so this relies on message keywords.
func classify(gerr *gst.GError, device string) *capture.Error {
	if gerr == nil {
		return capture.NewError(capture.KindUnknown, device, fmt.Errorf("unknown GStreamer error"))
	}
	cause := fmt.Errorf("%s: %s", gerr.Error(), gerr.DebugString())
	return capture.NewError(kindFor(strings.ToLower(gerr.Error()+" "+gerr.DebugString())), device, cause)
}

func kindFor(text string) capture.Kind {
	switch {
	case containsAny(text, "permission denied", "not authorized", "not permitted", "eacces"):
		return capture.KindPermissionDenied
	case containsAny(text, "busy", "ebusy", "in use"):
		return capture.KindDeviceBusy
	case containsAny(text, "not-negotiated", "not negotiated", "could not negotiate", "no supported formats", "invalid caps"):
		return capture.KindUnsupportedConstraints
	case containsAny(text, "no such file", "cannot identify device", "not found", "does not exist", "could not open", "resource not found"):
		return capture.KindNoDevice
	default:
		return capture.KindUnknown
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
