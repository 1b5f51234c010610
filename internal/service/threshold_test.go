package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold_ClampsToBounds(t *testing.T) {
	th := NewThreshold(0.95, 0.1, 0.9)
	assert.Equal(t, 0.9, th.Load(), "initial value should be clamped")

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{0.05, 0.1},
		{1.5, 0.9},
		{0.1, 0.1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Set(tt.in), "Set(%v)", tt.in)
		assert.Equal(t, tt.want, th.Load())
	}
}

func TestThreshold_IgnoresNaN(t *testing.T) {
	th := NewThreshold(0.4, 0.1, 0.9)

	assert.Equal(t, 0.4, th.Set(math.NaN()))
	assert.Equal(t, 0.4, th.Load())

	min, max := th.Bounds()
	assert.Equal(t, 0.1, min)
	assert.Equal(t, 0.9, max)
}
