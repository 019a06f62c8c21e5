package recording

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/platform"
)

const fakeType = "video/x-test"

// chunkEncoder emits a fixed chunk list when stopped, optionally failing
// after failAfter chunks.
type chunkEncoder struct {
	mu        sync.Mutex
	chunks    [][]byte
	failAfter int
	failErr   error
	out       chan Chunk
	err       error
	frames    int
	cfg       EncoderConfig
}

func (e *chunkEncoder) Start(_ context.Context, cfg EncoderConfig) (<-chan Chunk, error) {
	e.cfg = cfg
	e.out = make(chan Chunk)
	return e.out, nil
}

func (e *chunkEncoder) WriteFrame(*frame.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames++
	return nil
}

func (e *chunkEncoder) Stop() error {
	go func() {
		defer close(e.out)
		for i, c := range e.chunks {
			if e.failErr != nil && i == e.failAfter {
				e.mu.Lock()
				e.err = e.failErr
				e.mu.Unlock()
				return
			}
			e.out <- Chunk{Seq: i + 1, Data: c}
		}
	}()
	return nil
}

func (e *chunkEncoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func mustFrame(t *testing.T, w, h int) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h)
	require.NoError(t, err)
	return f
}

func recorderWith(enc Encoder) *Recorder {
	reg := &Registry{}
	reg.Register(fakeType, nil, func(MediaType) (Encoder, error) { return enc, nil })
	return NewRecorder(Options{Registry: reg, MediaType: fakeType})
}

func TestRecorder_ConcatenatesChunksInEmissionOrder(t *testing.T) {
	tests := []struct {
		name   string
		chunks [][]byte
	}{
		{"equal sizes", [][]byte{[]byte("aaa"), []byte("bbb"), []byte("ccc")}},
		{"mixed sizes", [][]byte{[]byte("a"), bytes.Repeat([]byte("b"), 4096), []byte("cc")}},
		{"empty middle", [][]byte{[]byte("first"), {}, []byte("last")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recorderWith(&chunkEncoder{chunks: tt.chunks})
			require.NoError(t, rec.Start(context.Background(), 4, 4))
			require.NoError(t, rec.WriteFrame(mustFrame(t, 4, 4)))

			art, err := rec.Stop(context.Background())
			require.NoError(t, err)

			assert.Equal(t, bytes.Join(tt.chunks, nil), art.Data)
			assert.Equal(t, fakeType, art.MediaType)
			assert.Equal(t, len(tt.chunks), art.Chunks)
			assert.Len(t, art.DigestHex(), 64)
			assert.False(t, rec.Recording())
		})
	}
}

func TestRecorder_MidStreamFailureDiscardsChunks(t *testing.T) {
	boom := errors.New("encoder crashed")
	rec := recorderWith(&chunkEncoder{
		chunks:    [][]byte{[]byte("c1"), []byte("c2"), []byte("c3")},
		failAfter: 2,
		failErr:   boom,
	})
	require.NoError(t, rec.Start(context.Background(), 4, 4))

	art, err := rec.Stop(context.Background())
	assert.Nil(t, art)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "encode", encErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestRecorder_ExplicitUnsupportedTypeFailsStart(t *testing.T) {
	rec := NewRecorder(Options{MediaType: "video/x-unknown"})
	err := rec.Start(context.Background(), 4, 4)

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.False(t, rec.Recording())
}

func TestRecorder_PreferredTypeFallsBackToRegistryDefault(t *testing.T) {
	rec := NewRecorder(Options{Class: platform.Desktop})
	require.NoError(t, rec.Start(context.Background(), 8, 8))
	assert.Equal(t, MediaTypeMJPEG, rec.MediaType())

	_, err := rec.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorder_StateErrors(t *testing.T) {
	rec := recorderWith(&chunkEncoder{})

	assert.ErrorIs(t, rec.WriteFrame(mustFrame(t, 1, 1)), ErrNotRecording)
	_, err := rec.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)

	require.NoError(t, rec.Start(context.Background(), 2, 2))
	assert.ErrorIs(t, rec.Start(context.Background(), 2, 2), ErrAlreadyRecording)
	_, err = rec.Stop(context.Background())
	require.NoError(t, err)
}

type noRecording struct{ DefaultCapabilities }

func (noRecording) SupportsRecording() bool { return false }

func TestRecorder_UnsupportedHost(t *testing.T) {
	rec := NewRecorder(Options{Capabilities: noRecording{}})
	assert.ErrorIs(t, rec.Start(context.Background(), 2, 2), ErrRecordingUnsupported)
}

func TestRecorder_PassesCapabilityChunkInterval(t *testing.T) {
	enc := &chunkEncoder{}
	reg := &Registry{}
	reg.Register(MediaTypeMP4, nil, func(MediaType) (Encoder, error) { return enc, nil })
	rec := NewRecorder(Options{Registry: reg, Class: platform.IOS, FrameRate: 24})

	require.NoError(t, rec.Start(context.Background(), 16, 8))
	_, err := rec.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, MediaTypeMP4, enc.cfg.MediaType)
	assert.Equal(t, 100*time.Millisecond, enc.cfg.ChunkInterval)
	assert.Equal(t, 24, enc.cfg.FrameRate)
	assert.Equal(t, 16, enc.cfg.Width)
}

// droppingEncoder reports a fixed number of skipped frames.
type droppingEncoder struct {
	chunkEncoder
	dropped uint64
}

func (e *droppingEncoder) Dropped() uint64 { return e.dropped }

func TestRecorder_ReportsEncoderDrops(t *testing.T) {
	enc := &droppingEncoder{chunkEncoder: chunkEncoder{chunks: [][]byte{[]byte("x")}}, dropped: 3}
	rec := recorderWith(enc)
	require.NoError(t, rec.Start(context.Background(), 4, 4))

	art, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), art.DroppedFrames)

	plain := recorderWith(&chunkEncoder{chunks: [][]byte{[]byte("x")}})
	require.NoError(t, plain.Start(context.Background(), 4, 4))
	art, err = plain.Stop(context.Background())
	require.NoError(t, err)
	assert.Zero(t, art.DroppedFrames)
}

func TestMJPEGEncoder_CountsQueueOverflow(t *testing.T) {
	var _ DropCounter = (*MJPEGEncoder)(nil)

	enc := NewMJPEGEncoder(DefaultJPEGQuality)
	assert.Zero(t, enc.Dropped())
}
