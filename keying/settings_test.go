package keying

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	d := DefaultSettings()
	assert.Equal(t, 0.4, d.Threshold)
	assert.Equal(t, 0.1, d.Smoothness)
	assert.Equal(t, 0.1, d.Spill)
	assert.Equal(t, KeyGreen, d.KeyColor)
	assert.True(t, d.IsClamped())
}

func TestSettings_Clamp(t *testing.T) {
	tests := []struct {
		name string
		in   Settings
		want Settings
	}{
		{
			name: "in range unchanged",
			in:   Settings{Threshold: 0.3, Smoothness: 0.2, Spill: 0.05, KeyColor: RGB{10, 200, 30}},
			want: Settings{Threshold: 0.3, Smoothness: 0.2, Spill: 0.05, KeyColor: RGB{10, 200, 30}},
		},
		{
			name: "above range",
			in:   Settings{Threshold: 4, Smoothness: 0.9, Spill: 7, KeyColor: RGB{300, 256, 1000}},
			want: Settings{Threshold: 1, Smoothness: 0.5, Spill: 0.5, KeyColor: RGB{255, 255, 255}},
		},
		{
			name: "below range",
			in:   Settings{Threshold: -1, Smoothness: -0.1, Spill: -3, KeyColor: RGB{-5, -1, -9}},
			want: Settings{KeyColor: RGB{}},
		},
		{
			name: "NaN uses defaults",
			in:   Settings{Threshold: math.NaN(), Smoothness: math.NaN(), Spill: math.NaN(), KeyColor: RGB{math.NaN(), math.NaN(), math.NaN()}},
			want: DefaultSettings(),
		},
		{
			name: "infinities",
			in:   Settings{Threshold: math.Inf(1), Smoothness: math.Inf(-1), Spill: math.Inf(1), KeyColor: RGB{math.Inf(-1), math.Inf(1), 0}},
			want: Settings{Threshold: 1, Smoothness: 0, Spill: 0.5, KeyColor: RGB{0, 255, 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Clamp())
		})
	}
}

func TestSettings_ClampRandomOutOfRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	specials := []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.MaxFloat64, -math.MaxFloat64}

	gen := func() float64 {
		if rng.Intn(5) == 0 {
			return specials[rng.Intn(len(specials))]
		}
		// magnitudes well outside every declared range
		return (rng.Float64()*2 - 1) * 1e6
	}

	for i := 0; i < 2000; i++ {
		s := Settings{
			Threshold:  gen(),
			Smoothness: gen(),
			Spill:      gen(),
			KeyColor:   RGB{gen(), gen(), gen()},
		}.Clamp()

		require.False(t, math.IsNaN(s.Threshold))
		assert.GreaterOrEqual(t, s.Threshold, MinThreshold)
		assert.LessOrEqual(t, s.Threshold, MaxThreshold)
		assert.GreaterOrEqual(t, s.Smoothness, MinSmoothness)
		assert.LessOrEqual(t, s.Smoothness, MaxSmoothness)
		assert.GreaterOrEqual(t, s.Spill, MinSpill)
		assert.LessOrEqual(t, s.Spill, MaxSpill)
		for _, c := range []float64{s.KeyColor.R, s.KeyColor.G, s.KeyColor.B} {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 255.0)
		}
		assert.True(t, s.IsClamped())
	}
}

func TestStore(t *testing.T) {
	st := NewStore(Settings{Threshold: 2, Smoothness: 0.1, Spill: 0.1, KeyColor: KeyGreen})
	assert.Equal(t, 1.0, st.Snapshot().Threshold)

	applied := st.Set(Settings{Threshold: 0.25, Smoothness: 0.6, Spill: 0.2, KeyColor: KeyGreen})
	assert.Equal(t, 0.5, applied.Smoothness)
	assert.Equal(t, applied, st.Snapshot())

	var zero Store
	assert.Equal(t, DefaultSettings(), zero.Snapshot())
}

func TestStore_ConcurrentUpdate(t *testing.T) {
	st := NewStore(Settings{Threshold: 0, Smoothness: 0, Spill: 0, KeyColor: KeyGreen})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Update(func(s Settings) Settings {
				s.Threshold += 0.01
				return s
			})
		}()
	}
	wg.Wait()

	assert.InDelta(t, 0.5, st.Snapshot().Threshold, 1e-9)
}

func TestStore_SnapshotIsolated(t *testing.T) {
	st := NewStore(DefaultSettings())
	snap := st.Snapshot()
	st.Set(Settings{Threshold: 0.9, Smoothness: 0.1, Spill: 0.1, KeyColor: KeyGreen})
	assert.Equal(t, 0.4, snap.Threshold, "snapshot must not observe later writes")
}
