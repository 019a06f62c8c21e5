package compositor

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/keying"
)

// Edge refinement touches only pixels whose first-pass coverage lies strictly
// between these 8-bit values.
const (
	edgeLow  = 10
	edgeHigh = 245
)

var edgeKernel = [3][3]float64{
	{1, 2, 1},
	{2, 4, 2},
	{1, 2, 1},
}

const edgeKernelSum = 16

// Software is the CPU compositor using HSV-distance keying.
type Software struct {
	mu      sync.Mutex
	bgCache *backgroundCache

	// scratch buffers reused across frames of the same size
	alpha []float64
	keyed []byte
}

// NewSoftware creates a software compositor.
func NewSoftware() *Software {
	return &Software{bgCache: newBackgroundCache()}
}

// Strategy returns StrategySoftware.
func (s *Software) Strategy() Strategy {
	return StrategySoftware
}

// Close is a no-op.
func (s *Software) Close() error {
	return nil
}

// Composite keys fg in two passes. The first computes per-pixel coverage from
// HSV distance to the key color, suppresses spill and blends. The second
// smooths coverage on interior edge pixels with a 3x3 kernel and re-blends
// them.
func (s *Software) Composite(fg, bg *frame.Frame, settings keying.Settings) (*Result, error) {
	bg, err := prepare(fg, bg, s.bgCache)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings = settings.Clamp()
	n := fg.Width * fg.Height
	s.ensureScratch(n)

	out := newOutput(fg)
	mask := make([]uint8, n)

	s.keyPass(fg, bg, settings, out, mask)
	refined := s.edgePass(fg.Width, fg.Height, bg, out, mask)

	logrus.WithFields(logrus.Fields{
		"function": "Software.Composite",
		"seq":      fg.Seq,
		"width":    fg.Width,
		"height":   fg.Height,
		"refined":  refined,
	}).Trace("Frame composited")

	return &Result{Frame: out, Mask: mask}, nil
}

func (s *Software) ensureScratch(n int) {
	if len(s.alpha) != n {
		s.alpha = make([]float64, n)
		s.keyed = make([]byte, n*4)
	}
}

func (s *Software) keyPass(fg, bg *frame.Frame, settings keying.Settings, out *frame.Frame, mask []uint8) {
	key := settings.KeyColor.HSV()
	fp, bp, op := fg.Pix, bg.Pix, out.Pix

	for p := range mask {
		i := p * 4
		r, g, b := fp[i], fp[i+1], fp[i+2]

		d := keying.Distance(keying.RGBToHSV(r, g, b), key)
		a := keying.Alpha(d, settings.Threshold, settings.Smoothness)

		kr, kg, kb := r, g, b
		if a > 0 && a < 1 && settings.Spill > 0 {
			kr, kg, kb = suppressSpill(r, g, b, (1-a)*settings.Spill)
		}
		s.keyed[i], s.keyed[i+1], s.keyed[i+2] = kr, kg, kb

		op[i] = blend(kr, bp[i], a)
		op[i+1] = blend(kg, bp[i+1], a)
		op[i+2] = blend(kb, bp[i+2], a)
		op[i+3] = 255

		s.alpha[p] = a
		mask[p] = toByte(a * 255)
	}
}

// edgePass returns the number of refined pixels.
func (s *Software) edgePass(width, height int, bg, out *frame.Frame, mask []uint8) int {
	if width < 3 || height < 3 {
		return 0
	}

	// Decisions and kernel inputs come from the first-pass mask only.
	first := append([]uint8(nil), mask...)
	refined := 0

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			p := y*width + x
			if first[p] <= edgeLow || first[p] >= edgeHigh {
				continue
			}

			var sum float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += float64(first[(y+ky)*width+x+kx]) * edgeKernel[ky+1][kx+1]
				}
			}
			a := sum / edgeKernelSum / 255

			i := p * 4
			out.Pix[i] = blend(s.keyed[i], bg.Pix[i], a)
			out.Pix[i+1] = blend(s.keyed[i+1], bg.Pix[i+1], a)
			out.Pix[i+2] = blend(s.keyed[i+2], bg.Pix[i+2], a)
			mask[p] = toByte(a * 255)
			refined++
		}
	}
	return refined
}

// suppressSpill lowers each channel by its excess over the other two, scaled
// by amount.
func suppressSpill(r, g, b uint8, amount float64) (uint8, uint8, uint8) {
	rf, gf, bf := float64(r), float64(g), float64(b)
	sr := math.Max(0, (rf-math.Max(gf, bf))*amount)
	sg := math.Max(0, (gf-math.Max(rf, bf))*amount)
	sb := math.Max(0, (bf-math.Max(rf, gf))*amount)
	return toByte(rf - sr), toByte(gf - sg), toByte(bf - sb)
}

func blend(fg, bg uint8, alpha float64) uint8 {
	return toByte(float64(fg)*alpha + float64(bg)*(1-alpha))
}

func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
