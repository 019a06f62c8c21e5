package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chromakey/limits"
)

func TestNew(t *testing.T) {
	f, err := New(4, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Len(t, f.Pix, 4*3*4)
	assert.NotEmpty(t, f.TraceID)

	_, err = New(0, 3)
	assert.ErrorIs(t, err, limits.ErrInvalidDimensions)
}

func TestSolid(t *testing.T) {
	c := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	f, err := Solid(3, 2, c)
	require.NoError(t, err)

	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, c, f.At(x, y))
		}
	}
}

func TestFromPix(t *testing.T) {
	pix := make([]byte, 2*2*4)
	f, err := FromPix(pix, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Width)

	_, err = FromPix(pix[:3], 2, 2)
	assert.ErrorIs(t, err, limits.ErrBufferSize)
}

func TestFromImage(t *testing.T) {
	t.Run("rgba with sub-rectangle", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.Set(1, 1, color.RGBA{R: 200, A: 255})
		sub := img.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

		f, err := FromImage(sub)
		require.NoError(t, err)
		assert.Equal(t, 2, f.Width)
		assert.Equal(t, color.RGBA{R: 200, A: 255}, f.At(0, 0))
	})

	t.Run("gray converts", func(t *testing.T) {
		img := image.NewGray(image.Rect(0, 0, 2, 1))
		img.SetGray(1, 0, color.Gray{Y: 128})

		f, err := FromImage(img)
		require.NoError(t, err)
		assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, f.At(1, 0))
	})

	t.Run("nil", func(t *testing.T) {
		_, err := FromImage(nil)
		assert.Error(t, err)
	})
}

func TestClone(t *testing.T) {
	f, err := Solid(2, 2, color.RGBA{G: 255, A: 255})
	require.NoError(t, err)
	f.Seq = 7

	c := f.Clone()
	c.Pix[0] = 99

	assert.Equal(t, uint8(0), f.Pix[0], "clone must not share pixels")
	assert.Equal(t, uint64(7), c.Seq)
	assert.Equal(t, f.TraceID, c.TraceID)
}

func TestScaler_Scale(t *testing.T) {
	s := NewScaler()
	src, err := Solid(8, 6, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	require.NoError(t, err)

	t.Run("downscale keeps solid color", func(t *testing.T) {
		out, err := s.Scale(src, 4, 3)
		require.NoError(t, err)
		assert.Equal(t, 4, out.Width)
		assert.Equal(t, 3, out.Height)
		assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, out.At(2, 1))
	})

	t.Run("upscale", func(t *testing.T) {
		out, err := s.Scale(src, 16, 12)
		require.NoError(t, err)
		assert.Len(t, out.Pix, 16*12*4)
		assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, out.At(15, 11))
	})

	t.Run("same size returns copy", func(t *testing.T) {
		out, err := s.Scale(src, 8, 6)
		require.NoError(t, err)
		out.Pix[0] = 42
		assert.Equal(t, uint8(1), src.Pix[0])
	})

	t.Run("invalid target", func(t *testing.T) {
		_, err := s.Scale(src, 0, 6)
		assert.ErrorIs(t, err, limits.ErrInvalidDimensions)
	})

	t.Run("nil source", func(t *testing.T) {
		_, err := s.Scale(nil, 4, 4)
		assert.Error(t, err)
	})
}

func TestScaler_Factors(t *testing.T) {
	s := NewScaler()
	x, y := s.GetScaleFactors(100, 50, 200, 25)
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 0.5, y)
	assert.False(t, s.IsScalingRequired(3, 3, 3, 3))
	assert.True(t, s.IsScalingRequired(3, 3, 3, 4))
}
