package service

import (
	"math"

	"go.uber.org/atomic"
)

// Threshold is the live confidence threshold. The UI adjusts it while frames are
// being decoded, so reads and writes are atomic.
type Threshold struct {
	value    *atomic.Float64
	min, max float64
}

// NewThreshold creates a threshold clamped to [min, max].
func NewThreshold(initial, min, max float64) *Threshold {
	t := &Threshold{value: atomic.NewFloat64(min), min: min, max: max}
	t.Set(initial)
	return t
}

// Load returns the current threshold.
func (t *Threshold) Load() float64 {
	return t.value.Load()
}

// Set stores v clamped to the allowed range and returns the stored value.
// NaN leaves the threshold unchanged.
func (t *Threshold) Set(v float64) float64 {
	if math.IsNaN(v) {
		return t.value.Load()
	}
	v = math.Max(t.min, math.Min(t.max, v))
	t.value.Store(v)
	return v
}

// Bounds returns the allowed range.
func (t *Threshold) Bounds() (min, max float64) {
	return t.min, t.max
}
