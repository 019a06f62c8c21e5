// Package upload persists recording artifacts to an HTTP endpoint with
// bounded retries and a local fallback.
//
// # Protocol
//
// Each attempt POSTs multipart/form-data to the configured endpoint:
//
//	file  the artifact bytes, with the artifact's media type
//	type  always "video"
//
// The X-Artifact-Digest header carries the BLAKE2b-256 digest of the
// artifact so the server can detect truncated bodies. A 2xx response must
// carry JSON of the form:
//
//	{"success": true, "url": "https://...", "filename": "...", "size": 123, "type": "video"}
//
// # Retry Behavior
//
// Upload makes up to Config.MaxAttempts attempts (3 by default). There is no
// wait before the first attempt; before attempt n+1 the client waits
// n × Config.BackoffUnit, so delays grow linearly (1s, 2s, ...). A
// 413 Payload Too Large response ends the retries at once, as does an
// artifact larger than Config.MaxArtifactBytes (checked before any request).
//
// # Fallback
//
// When no attempt succeeds the client returns a Result with Fallback set, the
// Cause of the failure and a self-contained LocalRef: a data: URL by default,
// or a file:// URL when Config.SpoolDir is set. The artifact is never
// modified.
//
// A client built without an endpoint never makes a request. It still
// enforces Config.MaxArtifactBytes and returns the same kind of Result, with
// ErrNoEndpoint as the Cause and LocalOnly reporting true.
//
// # Testing Support
//
// Retry timing is injectable through the Sleeper interface:
//
//	client := upload.NewClient(cfg)
//	client.SetSleeper(&recordingSleeper{})
package upload
