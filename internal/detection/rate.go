package detection

import (
	"math"
	"sync"
	"time"
)

// RateTracker derives an instantaneous frames-per-second value from the interval
// between consecutive ticks. The zero value is ready to use.
type RateTracker struct {
	mu      sync.Mutex
	last    time.Time
	hasLast bool
	lastFPS int
	hasFPS  bool
}

// NewRateTracker returns a tracker with no prior sample.
func NewRateTracker() *RateTracker {
	return &RateTracker{}
}

// Tick records a frame observed at now and returns the rate since the previous tick.
// ok is false on the first tick and whenever the interval is zero or negative.
func (t *RateTracker) Tick(now time.Time) (fps int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasLast {
		t.last = now
		t.hasLast = true
		return 0, false
	}

	deltaMs := float64(now.Sub(t.last)) / float64(time.Millisecond)
	t.last = now
	if deltaMs <= 0 {
		return 0, false
	}

	fps = int(math.Round(1000 / deltaMs))
	t.lastFPS = fps
	t.hasFPS = true
	return fps, true
}

// Last returns the most recently emitted rate.
func (t *RateTracker) Last() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFPS, t.hasFPS
}

// Reset forgets the previous sample, as at the start of a new capture session.
func (t *RateTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	t.hasLast = false
	t.lastFPS = 0
	t.hasFPS = false
}
