package keying

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Bounds for each tunable parameter.
const (
	MinThreshold  = 0.0
	MaxThreshold  = 1.0
	MinSmoothness = 0.0
	MaxSmoothness = 0.5
	MinSpill      = 0.0
	MaxSpill      = 0.5
)

// RGB is a key color with channels in [0, 255].
type RGB struct {
	R float64 `json:"r" yaml:"r"`
	G float64 `json:"g" yaml:"g"`
	B float64 `json:"b" yaml:"b"`
}

// KeyGreen is the canonical studio green.
var KeyGreen = RGB{R: 0, G: 255, B: 0}

// Settings are the chroma-key parameters read by the compositors.
//
// The software compositor treats Threshold as an HSV distance from KeyColor;
// the hardware compositor treats it as a greenness level (g - max(r, b)).
// Identical values therefore key with different aggressiveness per strategy.
type Settings struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Smoothness float64 `json:"smoothness" yaml:"smoothness"`
	Spill      float64 `json:"spill" yaml:"spill"`
	KeyColor   RGB     `json:"keyColor" yaml:"key_color"`
}

// DefaultSettings returns the safe fallback used when nothing better is known.
func DefaultSettings() Settings {
	return Settings{
		Threshold:  0.4,
		Smoothness: 0.1,
		Spill:      0.1,
		KeyColor:   KeyGreen,
	}
}

// Clamp returns a copy with every field forced into its declared range.
func (s Settings) Clamp() Settings {
	def := DefaultSettings()
	return Settings{
		Threshold:  clampFloat(s.Threshold, MinThreshold, MaxThreshold, def.Threshold),
		Smoothness: clampFloat(s.Smoothness, MinSmoothness, MaxSmoothness, def.Smoothness),
		Spill:      clampFloat(s.Spill, MinSpill, MaxSpill, def.Spill),
		KeyColor: RGB{
			R: clampFloat(s.KeyColor.R, 0, 255, def.KeyColor.R),
			G: clampFloat(s.KeyColor.G, 0, 255, def.KeyColor.G),
			B: clampFloat(s.KeyColor.B, 0, 255, def.KeyColor.B),
		},
	}
}

// IsClamped reports whether s is already within range.
func (s Settings) IsClamped() bool {
	return s == s.Clamp()
}

func (s Settings) String() string {
	return fmt.Sprintf("threshold=%.3f smoothness=%.3f spill=%.3f key=(%.0f,%.0f,%.0f)",
		s.Threshold, s.Smoothness, s.Spill, s.KeyColor.R, s.KeyColor.G, s.KeyColor.B)
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Store holds the live settings of a session. Readers take a Snapshot once per
// frame; writers replace the whole value.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a store holding the clamped initial settings.
func NewStore(initial Settings) *Store {
	st := &Store{}
	st.Set(initial)
	return st
}

// Snapshot returns the current clamped settings.
func (st *Store) Snapshot() Settings {
	if p := st.current.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

// Set replaces the current settings after clamping them.
func (st *Store) Set(s Settings) Settings {
	clamped := s.Clamp()
	if clamped != s {
		logrus.WithFields(logrus.Fields{
			"function":  "Store.Set",
			"requested": s.String(),
			"applied":   clamped.String(),
		}).Debug("Settings clamped into range")
	}
	st.current.Store(&clamped)
	return clamped
}

// Update applies fn to the current snapshot and stores the clamped result.
// Concurrent updates are serialized with compare-and-swap so none is lost.
func (st *Store) Update(fn func(Settings) Settings) Settings {
	for {
		old := st.current.Load()
		base := DefaultSettings()
		if old != nil {
			base = *old
		}
		next := fn(base).Clamp()
		if st.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}
