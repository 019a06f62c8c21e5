// Package gstgl runs the keying fragment program on the GPU through
// GStreamer's OpenGL plugin.
//
// The device packs foreground and background side by side into one 2W×H
// frame and pushes it through
//
//	appsrc ! glupload ! glcolorconvert ! glshader ! glcolorconvert !
//	gldownload ! videocrop right=W ! appsink
//
// so a single sampler sees both images. Uniform values are compiled into the
// fragment source; the program is rebuilt only when settings change.
//
// This package needs cgo and the GStreamer GL plugins at runtime. Everything
// else in the module works without it.
package gstgl
