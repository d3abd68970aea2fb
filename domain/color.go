package domain

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// focusColors is the fixed palette cycled behind the focus-zone headline.
var focusColors = []string{
	"#FF5733",
	"#33FF57",
	"#3357FF",
	"#F033FF",
	"#FF33F0",
	"#33FFF0",
	"#FFFF33",
}

// ColorCycler picks a random display color from a fixed palette on a steady
// interval. Purely presentational and uncorrelated with session state.
type ColorCycler struct {
	mu      sync.Mutex
	current string
	rng     *rand.Rand
}

// NewColorCycler seeds the cycler with an initial palette pick.
func NewColorCycler(r *rand.Rand) *ColorCycler {
	c := &ColorCycler{rng: r}
	c.cycle()
	return c
}

// Run cycles the color every interval until ctx is cancelled.
func (c *ColorCycler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cycle()
		}
	}
}

// Color returns the currently selected palette entry.
func (c *ColorCycler) Color() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *ColorCycler) cycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = focusColors[c.rng.Intn(len(focusColors))]
}
