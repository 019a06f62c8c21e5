package gpu

import (
	"errors"
	"fmt"
)

// Device errors.
var (
	// ErrContextUnavailable indicates no graphics context could be created.
	ErrContextUnavailable = errors.New("graphics context unavailable")

	// ErrDeviceClosed indicates the device has been released.
	ErrDeviceClosed = errors.New("device closed")

	// ErrNotSized indicates Resize has not been called yet.
	ErrNotSized = errors.New("device textures not allocated")

	// ErrTextureSize indicates an upload or destination buffer does not match
	// the allocated texture size.
	ErrTextureSize = errors.New("texture size mismatch")

	// ErrDrawTimeout indicates the device did not return a frame in time.
	ErrDrawTimeout = errors.New("draw timed out")
)

// CompileError reports a shader stage that failed to compile.
type CompileError struct {
	Stage string
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s shader compile failed: %s", e.Stage, e.Log)
}

// LinkError reports a program that failed to link.
type LinkError struct {
	Log string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("shader program link failed: %s", e.Log)
}

// IsInitFailure reports whether err happened while bringing up the device
// (context, compile or link) rather than while drawing.
func IsInitFailure(err error) bool {
	var ce *CompileError
	var le *LinkError
	return errors.Is(err, ErrContextUnavailable) || errors.As(err, &ce) || errors.As(err, &le)
}
