package compositor

import (
	"errors"
	"fmt"
)

// Compositor errors.
var (
	// ErrNilFrame indicates a missing foreground or background frame.
	ErrNilFrame = errors.New("frame cannot be nil")

	// ErrClosed indicates the compositor has been closed.
	ErrClosed = errors.New("compositor closed")

	// ErrUnknownStrategy indicates an unsupported strategy name.
	ErrUnknownStrategy = errors.New("unknown compositor strategy")
)

// ShaderInitError reports that the hardware path could not be brought up:
// no graphics context, or a shader that failed to compile or link.
type ShaderInitError struct {
	Backend string
	Err     error
}

func (e *ShaderInitError) Error() string {
	return fmt.Sprintf("shader init failed on %s: %v", e.Backend, e.Err)
}

func (e *ShaderInitError) Unwrap() error {
	return e.Err
}
