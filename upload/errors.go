package upload

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/opd-ai/chromakey/limits"
)

var (
	// ErrNetwork wraps transport failures and unexpected responses. These
	// are retried.
	ErrNetwork = errors.New("network error")

	// ErrNilArtifact indicates Upload was called without an artifact.
	ErrNilArtifact = errors.New("artifact cannot be nil")

	// ErrNoEndpoint is the Cause of a Result from a client with an empty
	// Config.Endpoint.
	ErrNoEndpoint = errors.New("upload endpoint not configured")

	// ErrRejected indicates a 2xx response that did not report success.
	ErrRejected = errors.New("upload rejected by server")
)

// SizeExceededError is fatal to the upload path only. Status is 413 when
// the server rejected the artifact and zero when the local limit did.
type SizeExceededError struct {
	Size   int
	Limit  int
	Status int
}

func (e *SizeExceededError) Error() string {
	if e.Status == http.StatusRequestEntityTooLarge {
		return fmt.Sprintf("server rejected artifact of %d bytes as too large", e.Size)
	}
	return fmt.Sprintf("artifact of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// Unwrap allows errors.Is(err, limits.ErrArtifactTooLarge).
func (e *SizeExceededError) Unwrap() error {
	return limits.ErrArtifactTooLarge
}

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrNetwork
}
