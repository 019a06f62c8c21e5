// Package keying holds the chroma-key parameters shared by every compositor
// strategy, the color math used by the software keyer, and the frame analyzer
// that estimates parameters from a sample frame.
//
// # Settings
//
// Settings are always clamped before use:
//
//	Threshold   [0, 1]
//	Smoothness  [0, 0.5]
//	Spill       [0, 0.5]
//	KeyColor    each channel [0, 255]
//
// NaN falls back to the corresponding DefaultSettings value, infinities clamp
// to the nearest bound. A Store holds the live settings of a session and hands
// out immutable snapshots, so a settings UI can update values while a
// compositor is in the middle of a frame.
//
// # Analysis
//
// Analyze samples every fourth pixel of a frame and derives settings from the
// green-dominant pixels it finds:
//
//	s := keying.Analyze(f)
//	store.Set(s)
//
// A frame without green-dominant pixels yields DefaultSettings.
package keying
