package keying

import "math"

// HSV is a color with hue in degrees [0, 360) and saturation/value in [0, 1].
type HSV struct {
	H, S, V float64
}

// Distance weights for hue, saturation and value.
const (
	hueWeight        = 0.5
	saturationWeight = 0.3
	valueWeight      = 0.2
)

// RGBToHSV converts 8-bit channels to HSV.
func RGBToHSV(r, g, b uint8) HSV {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		h = math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		h = (bf-rf)/delta + 2
	default:
		h = (rf-gf)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC != 0 {
		s = delta / maxC
	}
	return HSV{H: h, S: s, V: maxC}
}

// HSV converts the key color to HSV.
func (c RGB) HSV() HSV {
	return RGBToHSV(roundByte(c.R), roundByte(c.G), roundByte(c.B))
}

// Distance is the weighted HSV distance between two colors. Hue uses the
// shorter arc of the color wheel.
func Distance(a, b HSV) float64 {
	dh := math.Abs(a.H - b.H)
	dh = math.Min(dh, 360-dh) / 180
	ds := a.S - b.S
	dv := a.V - b.V
	return math.Sqrt(dh*dh*hueWeight + ds*ds*saturationWeight + dv*dv*valueWeight)
}

// Alpha maps a key distance to foreground opacity. It is exactly 0 below
// threshold-smoothness, exactly 1 at or above threshold+smoothness and linear
// in between. Zero smoothness is a hard step at threshold.
func Alpha(distance, threshold, smoothness float64) float64 {
	lo := threshold - smoothness
	hi := threshold + smoothness
	if distance >= hi {
		return 1
	}
	if distance < lo {
		return 0
	}
	return (distance - lo) / (2 * smoothness)
}

func roundByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
