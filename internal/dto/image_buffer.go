package dto

import (
	"image"
	"time"
)

// Frame is a decoded camera frame waiting for detection.
type Frame struct {
	Camera     string
	Image      image.Image
	CapturedAt time.Time
}
