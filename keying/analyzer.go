package keying

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
)

const (
	// sampleStride visits every fourth pixel.
	sampleStride = 4 * 4

	minGreenDominance = 30
	minGreenLevel     = 100
)

// Analyze estimates chroma-key settings from a sample frame. It is pure: the
// same frame always yields the same settings.
func Analyze(f *frame.Frame) Settings {
	if f == nil || len(f.Pix) < 4 {
		return DefaultSettings()
	}

	var sumR, sumG, sumB float64
	greens := make([]float64, 0, len(f.Pix)/sampleStride+1)

	for i := 0; i+2 < len(f.Pix); i += sampleStride {
		r := int(f.Pix[i])
		g := int(f.Pix[i+1])
		b := int(f.Pix[i+2])
		if g-r >= minGreenDominance && g-b >= minGreenDominance && g > minGreenLevel {
			sumR += float64(r)
			sumG += float64(g)
			sumB += float64(b)
			greens = append(greens, float64(g))
		}
	}

	if len(greens) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Analyze",
			"width":    f.Width,
			"height":   f.Height,
		}).Debug("No key-colored pixels found, using default settings")
		return DefaultSettings()
	}

	n := float64(len(greens))
	meanR, meanG, meanB := sumR/n, sumG/n, sumB/n

	var variance float64
	for _, g := range greens {
		d := g - meanG
		variance += d * d
	}
	variance /= n
	deviation := math.Sqrt(variance) / 255

	s := Settings{
		Threshold:  clampRange((meanG-math.Max(meanR, meanB))/255, 0.2, 0.8),
		Smoothness: clampRange(deviation, 0.05, 0.3),
		Spill:      clampRange(deviation*0.5, 0.05, 0.2),
		KeyColor:   RGB{R: meanR, G: meanG, B: meanB},
	}

	logrus.WithFields(logrus.Fields{
		"function": "Analyze",
		"samples":  len(greens),
		"settings": s.String(),
	}).Debug("Estimated chroma-key settings")

	return s.Clamp()
}

func clampRange(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
