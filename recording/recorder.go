package recording

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/platform"
)

// DefaultFrameRate is the encoder frame rate when Options leaves it unset.
const DefaultFrameRate = 30

// Options configure a Recorder.
type Options struct {
	// Registry provides encoders. Defaults to NewRegistry().
	Registry *Registry
	// Capabilities choose the media type and chunk interval. Defaults to
	// DefaultCapabilities over Registry.
	Capabilities Capabilities
	// Class is the host device class passed to Capabilities.
	Class platform.DeviceClass
	// MediaType overrides Capabilities. An explicit type the registry
	// cannot encode fails Start.
	MediaType string
	FrameRate int
	// Now is used for artifact timestamps.
	Now func() time.Time
}

type assembled struct {
	chunks [][]byte
	err    error
}

type activeRecording struct {
	mediaType string
	encoder   Encoder
	started   time.Time
	result    chan assembled
}

// Recorder captures composited frames into one Artifact per recording.
type Recorder struct {
	opts Options

	mu     sync.Mutex
	active *activeRecording
}

// NewRecorder fills in defaults for opts.
func NewRecorder(opts Options) *Recorder {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Capabilities == nil {
		opts.Capabilities = DefaultCapabilities{Registry: opts.Registry}
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{opts: opts}
}

// Recording reports whether a recording is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// MediaType returns the type of the active recording, or "".
func (r *Recorder) MediaType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.mediaType
}

func (r *Recorder) chooseMediaType() (string, error) {
	if r.opts.MediaType != "" {
		if !r.opts.Registry.Supports(r.opts.MediaType) {
			return "", &EncodingError{MediaType: r.opts.MediaType, Op: "start", Err: ErrUnsupportedMediaType}
		}
		return r.opts.MediaType, nil
	}

	mt := r.opts.Capabilities.PreferredMediaType(r.opts.Class)
	if mt != "" && r.opts.Registry.Supports(mt) {
		return mt, nil
	}
	def := r.opts.Registry.Default()
	if def == "" {
		return "", &EncodingError{MediaType: mt, Op: "start", Err: ErrUnsupportedMediaType}
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Recorder.Start",
		"preferred": mt,
		"using":     def,
	}).Warn("Preferred media type not encodable, using registry default")
	return def, nil
}

// Start begins a recording of width x height frames.
func (r *Recorder) Start(ctx context.Context, width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrAlreadyRecording
	}
	if !r.opts.Capabilities.SupportsRecording() {
		return ErrRecordingUnsupported
	}

	mediaType, err := r.chooseMediaType()
	if err != nil {
		return err
	}
	enc, err := r.opts.Registry.New(mediaType)
	if err != nil {
		return &EncodingError{MediaType: mediaType, Op: "start", Err: err}
	}

	cfg := EncoderConfig{
		MediaType:     mediaType,
		Width:         width,
		Height:        height,
		FrameRate:     r.opts.FrameRate,
		ChunkInterval: r.opts.Capabilities.PreferredChunkInterval(r.opts.Class),
	}
	chunks, err := enc.Start(ctx, cfg)
	if err != nil {
		return &EncodingError{MediaType: mediaType, Op: "start", Err: err}
	}

	rec := &activeRecording{
		mediaType: mediaType,
		encoder:   enc,
		started:   r.opts.Now(),
		result:    make(chan assembled, 1),
	}
	go assemble(chunks, enc, rec.result)
	r.active = rec

	logrus.WithFields(logrus.Fields{
		"function":       "Recorder.Start",
		"media_type":     mediaType,
		"width":          width,
		"height":         height,
		"chunk_interval": cfg.ChunkInterval,
	}).Info("Recording started")
	return nil
}

// assemble collects chunks in the order the encoder emitted them.
func assemble(chunks <-chan Chunk, enc Encoder, out chan<- assembled) {
	var buf [][]byte
	last := 0
	var orderErr error
	for c := range chunks {
		if c.Seq != 0 && c.Seq <= last && orderErr == nil {
			orderErr = errors.New("encoder emitted chunks out of order")
		}
		last = c.Seq
		buf = append(buf, c.Data)
	}
	err := enc.Err()
	if err == nil {
		err = orderErr
	}
	out <- assembled{chunks: buf, err: err}
}

// WriteFrame feeds a composited frame to the encoder.
func (r *Recorder) WriteFrame(f *frame.Frame) error {
	r.mu.Lock()
	rec := r.active
	r.mu.Unlock()

	if rec == nil {
		return ErrNotRecording
	}
	if err := rec.encoder.WriteFrame(f); err != nil {
		return &EncodingError{MediaType: rec.mediaType, Op: "write", Err: err}
	}
	return nil
}

// Stop finalizes the recording. On encoder failure the partial output is
// discarded and an *EncodingError is returned.
func (r *Recorder) Stop(ctx context.Context) (*Artifact, error) {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec == nil {
		return nil, ErrNotRecording
	}

	stopErr := rec.encoder.Stop()

	var res assembled
	select {
	case res = <-rec.result:
	case <-ctx.Done():
		return nil, &EncodingError{MediaType: rec.mediaType, Op: "stop", Err: ctx.Err()}
	}

	if res.err == nil && stopErr != nil {
		res.err = stopErr
	}
	if res.err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Recorder.Stop",
			"media_type": rec.mediaType,
			"discarded":  len(res.chunks),
			"error":      res.err.Error(),
		}).Error("Recording failed, partial output discarded")
		return nil, &EncodingError{MediaType: rec.mediaType, Op: "encode", Err: res.err}
	}

	artifact := NewArtifact(rec.mediaType, res.chunks)
	artifact.StartedAt = rec.started
	artifact.StoppedAt = r.opts.Now()
	if dc, ok := rec.encoder.(DropCounter); ok {
		artifact.DroppedFrames = dc.Dropped()
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Recorder.Stop",
		"artifact":   artifact.ID.String(),
		"media_type": artifact.MediaType,
		"chunks":     artifact.Chunks,
		"size":       artifact.Size(),
		"dropped":    artifact.DroppedFrames,
	}).Info("Recording finalized")
	return artifact, nil
}
