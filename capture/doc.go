// Package capture adapts cameras and video files into a source of RGBA
// frames.
//
// Open acquires a device through an Opener with the preferred constraints and
// retries once with MinimalConstraints when that fails. Acquisition is bounded
// by the context deadline, or DefaultOpenTimeout when the context has none.
//
// A FrameSource always holds the most recent frame only; callers that poll
// slower than the device produces frames simply skip the older ones. Close
// releases the device exactly once, even if a read is in progress.
//
// Failures are *Error values whose Kind can be matched with errors.Is:
//
//	if errors.Is(err, capture.ErrPermissionDenied) { ... }
package capture
