package gpu

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, r, g, b uint8) []byte {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 255
	}
	return pix
}

func drawSolid(t *testing.T, fg, bg [3]uint8, u Uniforms) []byte {
	t.Helper()
	dev := NewEmulated()
	require.NoError(t, dev.Resize(4, 4))
	require.NoError(t, dev.UploadForeground(solid(4, 4, fg[0], fg[1], fg[2])))
	require.NoError(t, dev.UploadBackground(solid(4, 4, bg[0], bg[1], bg[2])))
	dst := make([]byte, 4*4*4)
	require.NoError(t, dev.Draw(u, dst))
	return dst
}

func TestEmulated_Draw(t *testing.T) {
	u := Uniforms{Threshold: 0.4, Smoothness: 0.1, Spill: 0.1}

	tests := []struct {
		name string
		fg   [3]uint8
		want [4]uint8
	}{
		{"pure green keyed out", [3]uint8{0, 255, 0}, [4]uint8{0, 0, 255, 0}},
		{"pure red kept", [3]uint8{255, 0, 0}, [4]uint8{255, 0, 0, 255}},
		{"gray kept", [3]uint8{128, 128, 128}, [4]uint8{128, 128, 128, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := drawSolid(t, tt.fg, [3]uint8{0, 0, 255}, u)
			for i := 0; i < len(dst); i += 4 {
				assert.Equal(t, tt.want[:], dst[i:i+4])
			}
		})
	}
}

func TestEmulated_SpillShiftsRedAndBlue(t *testing.T) {
	// greenness 0.4 sits mid-ramp with threshold 0.4, smoothness 0.1
	u := Uniforms{Threshold: 0.4, Smoothness: 0.1, Spill: 0.2}
	fg := [3]uint8{51, 153, 51}
	dst := drawSolid(t, fg, [3]uint8{0, 0, 0}, u)

	coverage := float64(dst[3]) / 255
	assert.InDelta(t, 0.5, coverage, 0.01)
	// red and blue are pushed up before blending, green is not
	assert.Greater(t, float64(dst[0])/coverage, 51.0)
	assert.InDelta(t, 153.0, float64(dst[1])/coverage, 2)
}

func TestEmulated_HardStepAtZeroSmoothness(t *testing.T) {
	u := Uniforms{Threshold: 0.5, Smoothness: 0}
	below := drawSolid(t, [3]uint8{0, 120, 0}, [3]uint8{9, 9, 9}, u)
	above := drawSolid(t, [3]uint8{0, 140, 0}, [3]uint8{9, 9, 9}, u)
	assert.Equal(t, uint8(255), below[3])
	assert.Equal(t, uint8(0), above[3])
}

func TestEmulated_NoPerFrameAllocation(t *testing.T) {
	dev := NewEmulated()
	require.NoError(t, dev.Resize(8, 8))
	fg := solid(8, 8, 0, 255, 0)
	dst := make([]byte, len(fg))

	for i := 0; i < 10; i++ {
		require.NoError(t, dev.Resize(8, 8))
		require.NoError(t, dev.UploadForeground(fg))
		require.NoError(t, dev.UploadBackground(fg))
		require.NoError(t, dev.Draw(Uniforms{Threshold: 0.4, Smoothness: 0.1}, dst))
	}
	assert.Equal(t, 1, dev.TextureAllocations())

	require.NoError(t, dev.Resize(16, 8))
	assert.Equal(t, 2, dev.TextureAllocations())
}

func TestEmulated_Errors(t *testing.T) {
	dev := NewEmulated()
	assert.ErrorIs(t, dev.UploadForeground(make([]byte, 4)), ErrNotSized)
	assert.ErrorIs(t, dev.Draw(Uniforms{}, make([]byte, 4)), ErrNotSized)

	require.NoError(t, dev.Resize(2, 2))
	assert.ErrorIs(t, dev.UploadBackground(make([]byte, 3)), ErrTextureSize)
	assert.ErrorIs(t, dev.Draw(Uniforms{}, make([]byte, 3)), ErrTextureSize)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	assert.ErrorIs(t, dev.Resize(2, 2), ErrDeviceClosed)
	assert.ErrorIs(t, dev.Draw(Uniforms{}, make([]byte, 16)), ErrDeviceClosed)
}

func TestUniforms_Valid(t *testing.T) {
	assert.True(t, Uniforms{0.4, 0.1, 0.1}.Valid())
	assert.False(t, Uniforms{Threshold: float32(math.NaN())}.Valid())
	assert.False(t, Uniforms{Spill: float32(math.Inf(1))}.Valid())
}

func TestIsInitFailure(t *testing.T) {
	assert.True(t, IsInitFailure(ErrContextUnavailable))
	assert.True(t, IsInitFailure(fmt.Errorf("open: %w", &CompileError{Stage: "fragment", Log: "syntax"})))
	assert.True(t, IsInitFailure(&LinkError{Log: "bad varying"}))
	assert.False(t, IsInitFailure(ErrDrawTimeout))
}

func TestPackedFragmentSource(t *testing.T) {
	src := PackedFragmentSource
	for _, name := range []string{"threshold", "smoothness", "spill"} {
		assert.Contains(t, src, "uniform float "+name+";")
	}
	assert.NotContains(t, src, "const float")
	assert.Contains(t, src, "uniform sampler2D tex;")
	assert.Equal(t, 1, strings.Count(src, "void main()"))
	assert.Contains(t, FragmentSource, "uniform sampler2D background;")
}

func TestUniformStructure(t *testing.T) {
	got := UniformStructure(Uniforms{Threshold: 0.4, Smoothness: 0, Spill: 0.25})
	assert.Equal(t, "uniforms, threshold=(float)0.400000, smoothness=(float)0.000000, spill=(float)0.250000", got)

	// only the uniform values differ between settings, never the program
	other := UniformStructure(Uniforms{Threshold: 0.7, Smoothness: 0.2, Spill: 0.1})
	assert.NotEqual(t, got, other)
	assert.True(t, strings.HasPrefix(other, "uniforms, "))
}
