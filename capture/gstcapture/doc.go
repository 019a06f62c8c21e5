// Package gstcapture captures frames from V4L2 cameras and video files with
// GStreamer.
//
// Cameras use v4l2src, files and network URIs use uridecodebin. Both feed
//
//	videoconvert ! videoscale ! videorate ! video/x-raw,format=RGBA ! appsink
//
// with the appsink keeping only the newest buffer. Requires cgo and the
// GStreamer base plugins at runtime.
package gstcapture
