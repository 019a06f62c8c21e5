// Package gpu defines the shader device used by the hardware compositor.
//
// A Device owns two RGBA textures (foreground and background) sized once per
// dimension change and updated in place every frame, plus one fragment
// program evaluating the greenness keyer:
//
//	greenness = g - max(r, b)
//	keyMask   = smoothstep(threshold-smoothness, threshold+smoothness, greenness)
//	out       = mix(background, spillCorrected(foreground), 1-keyMask)
//
// The output alpha channel carries the foreground coverage (1-keyMask).
//
// Two backends exist: Emulated evaluates the program on the CPU with float32
// arithmetic and is used headless and in tests; package gpu/gstgl runs the
// GLSL source through GStreamer's OpenGL elements.
package gpu
