package service

import (
	"image"
	"sync"

	"github.com/lawinko/vision-detector/internal/dto"
)

// Snapshot pairs a frame with the detections decoded from it.
type Snapshot struct {
	Result dto.FrameResult
	Frame  image.Image
}

// ResultCell holds the most recent Snapshot. Older results never overwrite newer ones.
type ResultCell struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// Store replaces the held snapshot unless it already holds a newer frame.
// It reports whether s was stored.
func (c *ResultCell) Store(s Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set && s.Result.Sequence <= c.snap.Result.Sequence {
		return false
	}
	c.snap = s
	c.set = true
	return true
}

// Load returns the held snapshot, if any.
func (c *ResultCell) Load() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.set
}
