package recording

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/platform"
)

func TestParseMediaType(t *testing.T) {
	tests := []struct {
		in     string
		base   string
		codecs []string
		ext    string
	}{
		{"video/webm", MediaTypeWebM, nil, ".webm"},
		{"video/webm;codecs=vp9", MediaTypeWebM, []string{"vp9"}, ".webm"},
		{`video/webm; codecs="VP8, opus"`, MediaTypeWebM, []string{"vp8", "opus"}, ".webm"},
		{"video/mp4", MediaTypeMP4, nil, ".mp4"},
		{MediaTypeMJPEG, MediaTypeMJPEG, nil, ".mjpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mt, err := ParseMediaType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.base, mt.Base)
			assert.Equal(t, tt.codecs, mt.Codecs)
			assert.Equal(t, tt.ext, FileExtension(tt.in))
		})
	}

	_, err := ParseMediaType("")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestRegistry_CodecMatching(t *testing.T) {
	reg := &Registry{}
	reg.Register(MediaTypeWebM, []string{"vp8", "vp9"}, func(MediaType) (Encoder, error) {
		return NewMJPEGEncoder(50), nil
	})

	assert.True(t, reg.Supports("video/webm"))
	assert.True(t, reg.Supports("video/webm;codecs=vp9"))
	assert.False(t, reg.Supports("video/webm;codecs=h264"))
	assert.False(t, reg.Supports("video/mp4"))
	assert.Equal(t, MediaTypeWebM, reg.Default())

	_, err := reg.New("video/mp4")
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestDefaultCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.Register(MediaTypeWebM, []string{"vp8"}, func(MediaType) (Encoder, error) { return nil, nil })
	caps := DefaultCapabilities{Registry: reg}

	assert.True(t, caps.SupportsRecording())
	assert.Equal(t, "video/webm;codecs=vp8", caps.PreferredMediaType(platform.Desktop))
	assert.Equal(t, "video/webm;codecs=vp8", caps.PreferredMediaType(platform.Android))
	assert.Equal(t, "video/webm", caps.PreferredMediaType(platform.IOS))
	assert.Equal(t, 100*time.Millisecond, caps.PreferredChunkInterval(platform.IOS))
	assert.Equal(t, time.Second, caps.PreferredChunkInterval(platform.Desktop))

	assert.False(t, DefaultCapabilities{Registry: &Registry{}}.SupportsRecording())
}

func TestMJPEGEncoder_ChunksByTimestamp(t *testing.T) {
	enc := NewMJPEGEncoder(DefaultJPEGQuality)
	chunks, err := enc.Start(context.Background(), EncoderConfig{
		MediaType:     MediaTypeMJPEG,
		Width:         8,
		Height:        8,
		ChunkInterval: time.Second,
	})
	require.NoError(t, err)

	var got []Chunk
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range chunks {
			got = append(got, c)
		}
	}()

	base := time.Unix(1000, 0)
	for i := 0; i < 6; i++ {
		f := mustFrame(t, 8, 8)
		f.Timestamp = base.Add(time.Duration(i) * 400 * time.Millisecond)
		require.NoError(t, enc.WriteFrame(f))
	}
	require.NoError(t, enc.Stop())
	<-done

	require.NoError(t, enc.Err())
	// Frames at 0, 0.4, 0.8 | 1.2, 1.6, 2.0
	require.Len(t, got, 2)
	for i, c := range got {
		assert.Equal(t, i+1, c.Seq)
		assert.True(t, bytes.HasPrefix(c.Data, []byte{0xFF, 0xD8}), "chunk %d starts with SOI", i)
	}

	img, err := jpeg.Decode(bytes.NewReader(got[1].Data))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	assert.ErrorIs(t, enc.WriteFrame(mustFrame(t, 8, 8)), ErrEncoderStopped)
}

func TestMJPEGEncoder_InvalidFrameFails(t *testing.T) {
	enc := NewMJPEGEncoder(90)
	chunks, err := enc.Start(context.Background(), EncoderConfig{ChunkInterval: time.Second})
	require.NoError(t, err)

	bad := &frame.Frame{Width: 4, Height: 4, Pix: make([]byte, 3)}
	require.NoError(t, enc.WriteFrame(bad))

	for range chunks {
	}
	assert.Error(t, enc.Err())
	assert.NoError(t, enc.Stop())
}
