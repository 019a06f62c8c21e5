// Package httpapi exposes compositing sessions over HTTP using go-chi.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /sessions
//	POST   /sessions                       open a session
//	GET    /sessions/{id}                  status
//	DELETE /sessions/{id}                  stop and release the device
//	POST   /sessions/{id}/start
//	POST   /sessions/{id}/pause
//	POST   /sessions/{id}/resume
//	GET    /sessions/{id}/settings
//	PUT    /sessions/{id}/settings         replace keying settings
//	POST   /sessions/{id}/calibrate        analyze the current frame
//	POST   /sessions/{id}/recording        start recording
//	DELETE /sessions/{id}/recording        stop, finalize and upload
//	GET    /sessions/{id}/preview.jpg      latest composite
//	GET    /sessions/{id}/warnings         recent non-fatal warnings
package httpapi
