// Package gstenc provides GStreamer-backed recording encoders for WebM
// (VP8, VP9) and MP4 (H.264).
//
// Frames are pushed into an appsrc, encoded and muxed in a streamable
// configuration, and the muxer output is collected from an appsink. Bytes
// are grouped into recording.Chunk values on the configured chunk interval.
//
//	reg := recording.NewRegistry()
//	gstenc.Register(reg)
//	rec := recording.NewRecorder(recording.Options{Registry: reg})
//
// Register only adds the container types whose elements are installed.
package gstenc
