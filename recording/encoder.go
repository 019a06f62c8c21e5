package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/chromakey/frame"
)

// EncoderConfig configures one encoding run.
type EncoderConfig struct {
	MediaType     string
	Width         int
	Height        int
	FrameRate     int
	ChunkInterval time.Duration
}

// Chunk is one piece of encoded output. Seq starts at 1 and increases by one
// per chunk.
type Chunk struct {
	Seq  int
	Data []byte
}

// Encoder encodes frames incrementally.
//
// Start returns a channel of chunks in emission order. The channel is closed
// after Stop has flushed the last chunk, or early on failure; Err reports the
// failure once the channel is closed.
type Encoder interface {
	Start(ctx context.Context, cfg EncoderConfig) (<-chan Chunk, error)
	WriteFrame(f *frame.Frame) error
	Stop() error
	Err() error
}

// DropCounter is implemented by encoders that skip frames when they fall
// behind.
type DropCounter interface {
	Dropped() uint64
}

// EncoderFactory creates an encoder for a parsed media type.
type EncoderFactory func(mt MediaType) (Encoder, error)

type registration struct {
	base    string
	codecs  map[string]bool
	factory EncoderFactory
}

// Registry maps media types to encoder factories.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
}

// NewRegistry returns a registry holding the pure-Go MJPEG encoder.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(MediaTypeMJPEG, nil, func(MediaType) (Encoder, error) {
		return NewMJPEGEncoder(DefaultJPEGQuality), nil
	})
	return r
}

// Register adds a factory for base. codecs lists the codec parameters it
// accepts; an empty list accepts any. Later registrations for the same base
// take precedence.
func (r *Registry) Register(base string, codecs []string, factory EncoderFactory) {
	set := make(map[string]bool, len(codecs))
	for _, c := range codecs {
		set[c] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]registration{{base: base, codecs: set, factory: factory}}, r.entries...)
}

func (r *Registry) lookup(mediaType string) (MediaType, EncoderFactory, error) {
	mt, err := ParseMediaType(mediaType)
	if err != nil {
		return mt, nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.base != mt.Base {
			continue
		}
		if len(e.codecs) == 0 || len(mt.Codecs) == 0 {
			return mt, e.factory, nil
		}
		ok := true
		for _, c := range mt.Codecs {
			ok = ok && e.codecs[c]
		}
		if ok {
			return mt, e.factory, nil
		}
	}
	return mt, nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mediaType)
}

// Supports reports whether an encoder is registered for mediaType.
func (r *Registry) Supports(mediaType string) bool {
	_, _, err := r.lookup(mediaType)
	return err == nil
}

// New creates an encoder for mediaType.
func (r *Registry) New(mediaType string) (Encoder, error) {
	mt, factory, err := r.lookup(mediaType)
	if err != nil {
		return nil, err
	}
	return factory(mt)
}

// Default returns the most recently registered base type.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return ""
	}
	return r.entries[0].base
}
