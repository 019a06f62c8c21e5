// Package recording turns composited frames into an encoded artifact.
//
// A Recorder picks a media type and chunk interval from a Capabilities
// strategy, starts an Encoder from the Registry and runs an assembler
// goroutine that drains the encoder's chunk channel in order. Stop closes the
// encoder, waits for the channel to drain and concatenates the chunks into an
// Artifact:
//
//	rec := recording.NewRecorder(recording.Options{Class: platform.Desktop})
//	if err := rec.Start(ctx, 1280, 720); err != nil { ... }
//	rec.WriteFrame(f) // per composited frame
//	art, err := rec.Stop(ctx)
//
// Frames may be dropped when the encoder falls behind; chunks never are. An
// encoder failure discards everything buffered so far and is reported as an
// *EncodingError.
package recording
