package compositor

import (
	"github.com/opd-ai/chromakey/frame"
	"github.com/opd-ai/chromakey/keying"
)

// Simple replaces every pixel whose normalized greenness g-max(r,b) exceeds
// the threshold with the background pixel. There is no blending, so the mask
// is strictly 0 or 255. Smoothness and spill are ignored.
type Simple struct {
	bgCache *backgroundCache
}

// NewSimple creates a hard-replacement compositor.
func NewSimple() *Simple {
	return &Simple{bgCache: newBackgroundCache()}
}

// Strategy returns StrategySimple.
func (s *Simple) Strategy() Strategy {
	return StrategySimple
}

// Close is a no-op.
func (s *Simple) Close() error {
	return nil
}

// Composite applies the hard greenness cut.
func (s *Simple) Composite(fg, bg *frame.Frame, settings keying.Settings) (*Result, error) {
	bg, err := prepare(fg, bg, s.bgCache)
	if err != nil {
		return nil, err
	}

	threshold := settings.Clamp().Threshold
	out := newOutput(fg)
	mask := make([]uint8, fg.Width*fg.Height)

	for p := range mask {
		i := p * 4
		r, g, b := int(fg.Pix[i]), int(fg.Pix[i+1]), int(fg.Pix[i+2])
		src := fg.Pix
		mask[p] = 255
		if float64(g-max(r, b))/255 > threshold {
			src = bg.Pix
			mask[p] = 0
		}
		copy(out.Pix[i:i+3], src[i:i+3])
		out.Pix[i+3] = 255
	}

	return &Result{Frame: out, Mask: mask}, nil
}
