package capture

import (
	"errors"
	"fmt"
)

// Kind classifies capture failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindNoDevice
	KindDeviceBusy
	KindUnsupportedConstraints
	KindTimeout
	KindClosed
)

// Sentinel errors, one per Kind.
var (
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNoDevice               = errors.New("no capture device")
	ErrDeviceBusy             = errors.New("capture device busy")
	ErrUnsupportedConstraints = errors.New("unsupported constraints")
	ErrTimeout                = errors.New("device acquisition timed out")
	ErrClosed                 = errors.New("frame source closed")
	ErrCaptureFailed          = errors.New("capture failed")
)

// ErrNoFrame indicates the source is open but has not produced a frame yet.
// It is not a capture failure.
var ErrNoFrame = errors.New("no frame available yet")

func (k Kind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindNoDevice:
		return ErrNoDevice
	case KindDeviceBusy:
		return ErrDeviceBusy
	case KindUnsupportedConstraints:
		return ErrUnsupportedConstraints
	case KindTimeout:
		return ErrTimeout
	case KindClosed:
		return ErrClosed
	default:
		return ErrCaptureFailed
	}
}

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission-denied"
	case KindNoDevice:
		return "no-device"
	case KindDeviceBusy:
		return "device-busy"
	case KindUnsupportedConstraints:
		return "unsupported-constraints"
	case KindTimeout:
		return "timeout"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is a capture failure.
type Error struct {
	Kind   Kind
	Device string
	Err    error
}

// NewError builds an Error.
func NewError(kind Kind, device string, cause error) *Error {
	return &Error{Kind: kind, Device: device, Err: cause}
}

// Message is the user-facing description of the failure.
func (e *Error) Message() string {
	const prefix = "Unable to access camera. "
	switch e.Kind {
	case KindPermissionDenied:
		return prefix + "Please allow camera access and try again."
	case KindNoDevice:
		return prefix + "No camera found on this device."
	case KindUnsupportedConstraints:
		return prefix + "Camera not supported on this device."
	case KindDeviceBusy:
		return prefix + "The camera is in use by another application."
	case KindTimeout:
		return prefix + "The camera did not respond in time."
	case KindClosed:
		return "Camera has been released."
	default:
		return prefix + "Please check your camera permissions."
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("capture %s", e.Kind)
	if e.Device != "" {
		msg += fmt.Sprintf(" (%s)", e.Device)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
