package dto

import (
	"encoding/json"
	"time"

	"github.com/lawinko/vision-detector/internal/detection"
)

// Message types pushed to viewers.
const (
	MessageDetections = "detections"
	MessageFPS        = "fps"
)

// FrameResult holds the decoded detections of one processed frame.
type FrameResult struct {
	Sequence   uint64                `json:"frame"`
	Camera     string                `json:"camera"`
	Timestamp  time.Time             `json:"timestamp"`
	Target     detection.Resolution  `json:"target"`
	Threshold  float64               `json:"threshold"`
	Detections []detection.Detection `json:"detections"`
}

// MarshalJSON adds the message type and formats the capture timestamp.
func (r FrameResult) MarshalJSON() ([]byte, error) {
	type Alias FrameResult
	return json.Marshal(&struct {
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
		Alias
	}{
		Type:      MessageDetections,
		Timestamp: r.Timestamp.Format(time.RFC3339Nano),
		Alias:     (Alias)(r),
	})
}

// RateMessage carries the frame rate measured when a frame entered the pipeline.
type RateMessage struct {
	Type     string `json:"type"`
	Camera   string `json:"camera"`
	Sequence uint64 `json:"frame"`
	FPS      int    `json:"fps"`
}

// NewRateMessage builds an fps message for a frame.
func NewRateMessage(camera string, sequence uint64, fps int) RateMessage {
	return RateMessage{Type: MessageFPS, Camera: camera, Sequence: sequence, FPS: fps}
}
