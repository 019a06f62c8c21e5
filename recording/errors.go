package recording

import (
	"errors"
	"fmt"
)

// Recording errors.
var (
	// ErrUnsupportedMediaType indicates no encoder is registered for a type.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrRecordingUnsupported indicates the host cannot record at all.
	ErrRecordingUnsupported = errors.New("recording not supported")

	// ErrNotRecording indicates Stop or WriteFrame without Start.
	ErrNotRecording = errors.New("not recording")

	// ErrAlreadyRecording indicates Start while a recording is active.
	ErrAlreadyRecording = errors.New("already recording")

	// ErrEncoderStopped indicates a frame written after Stop.
	ErrEncoderStopped = errors.New("encoder stopped")
)

// EncodingError is fatal to the current recording.
type EncodingError struct {
	MediaType string
	Op        string
	Err       error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s failed during %s: %v", e.MediaType, e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
