// Package limits provides centralized size constants and validation functions
// for the chroma-key engine.
//
// # Limits
//
//   - MaxArtifactSize (50 MiB): The largest encoded recording accepted by the
//     upload path. Larger artifacts are preserved locally and never sent.
//
//   - MaxFrameDimension (8192 px) and MaxFramePixels (8K UHD): Bounds for any
//     frame entering the compositors. These protect the per-pixel loops from
//     pathological allocations.
//
// # Validation Functions
//
//	if err := limits.ValidateArtifactSize(len(data), 0); err != nil {
//	    // ErrArtifactEmpty or ErrArtifactTooLarge
//	}
//
//	if err := limits.ValidatePixelBuffer(pix, width, height); err != nil {
//	    // ErrInvalidDimensions or ErrBufferSize
//	}
//
// All errors wrap one of the package sentinels and can be classified with
// errors.Is.
package limits
