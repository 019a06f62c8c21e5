// Package compositor replaces the key color of a foreground frame with a
// background frame.
//
// Three strategies implement the Compositor interface:
//
//   - Software: HSV-distance keying with spill suppression and an edge
//     refinement pass, evaluated on the CPU.
//   - Hardware: RGB-greenness keying evaluated by a gpu.Device.
//   - Simple: hard replacement of pixels whose greenness exceeds the
//     threshold, for very low-power hosts.
//
// The software and hardware strategies read Threshold differently, so the
// same settings produce different keying strength. Strategy reports which one
// is in use so hosts can show it.
//
// New builds the compositor for a strategy. A hardware compositor whose
// device cannot be brought up is replaced by the software one, and the
// warning handler is told about it.
package compositor
