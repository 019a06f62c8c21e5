// Package config loads daemon configuration.
//
// Values are resolved in order, each layer overriding the previous one:
//
//  1. Defaults from Default
//  2. An optional YAML file
//  3. Variables from .env files, loaded into the process environment
//     without replacing variables that are already set
//  4. CHROMAKEY_* environment variables
//
// Environment values that fail to parse or fall outside their bounds are
// ignored with a warning, keeping the previous layer's value. Keying
// settings are clamped to their valid ranges after all layers are applied.
//
// # Environment Variables
//
//	CHROMAKEY_STRATEGY              hardware | software | simple
//	CHROMAKEY_FRAME_RATE            composite ticks per second (1-120)
//	CHROMAKEY_CAPTURE_DEVICE        device path or media URI
//	CHROMAKEY_CAPTURE_CLASS         desktop | android | ios
//	CHROMAKEY_CAPTURE_WIDTH         preferred width (16-8192)
//	CHROMAKEY_CAPTURE_HEIGHT        preferred height (16-8192)
//	CHROMAKEY_CAPTURE_FPS           preferred capture rate (1-120)
//	CHROMAKEY_CAPTURE_OPEN_TIMEOUT  device acquisition timeout, e.g. 10s
//	CHROMAKEY_THRESHOLD             keying threshold
//	CHROMAKEY_SMOOTHNESS            keying smoothness
//	CHROMAKEY_SPILL                 spill suppression
//	CHROMAKEY_BACKGROUND            background image, video file or URI
//	CHROMAKEY_RECORDING_MEDIA_TYPE  force a recording media type
//	CHROMAKEY_MAX_ARTIFACT_BYTES    local artifact size limit
//	CHROMAKEY_UPLOAD_ENDPOINT       upload URL; empty disables upload
//	CHROMAKEY_UPLOAD_ATTEMPTS       attempts per upload (1-10)
//	CHROMAKEY_UPLOAD_BACKOFF        linear backoff unit, e.g. 1s
//	CHROMAKEY_UPLOAD_TIMEOUT        per-attempt timeout
//	CHROMAKEY_SPOOL_DIR             directory for fallback artifacts
//	CHROMAKEY_ADDR                  HTTP listen address
//	CHROMAKEY_LOG_LEVEL             logrus level
//	CHROMAKEY_LOG_FORMAT            text | json
package config
