package session

import "errors"

var (
	// ErrDeviceInUse indicates the capture device already has a session.
	ErrDeviceInUse = errors.New("capture device already in use")

	// ErrSessionNotFound indicates an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoCaptureOpener indicates Deps.Capture is nil.
	ErrNoCaptureOpener = errors.New("no capture opener configured")
)
