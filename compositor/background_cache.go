package compositor

import (
	"sync"

	"github.com/opd-ai/chromakey/frame"
)

// backgroundCache keeps the last scaled background so a static background is
// resized once per size change instead of once per frame.
type backgroundCache struct {
	mu     sync.Mutex
	scaler *frame.Scaler
	source *frame.Frame
	result *frame.Frame
}

func newBackgroundCache() *backgroundCache {
	return &backgroundCache{scaler: frame.NewScaler()}
}

func (c *backgroundCache) scaled(bg *frame.Frame, width, height int) (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source == bg && c.result != nil && c.result.Width == width && c.result.Height == height {
		return c.result, nil
	}
	out, err := c.scaler.Scale(bg, width, height)
	if err != nil {
		return nil, err
	}
	c.source = bg
	c.result = out
	return out, nil
}
