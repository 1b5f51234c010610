package dto

import "time"

// ProcessingTimings holds per-stage durations of the last processed frame.
type ProcessingTimings struct {
	Preprocess time.Duration `json:"preprocess_ns"`
	Inference  time.Duration `json:"inference_ns"`
	Decode     time.Duration `json:"decode_ns"`
	Total      time.Duration `json:"total_ns"`
}

// Stats summarises pipeline behaviour for GET /api/stats.
type Stats struct {
	ModelState      string            `json:"model_state"`
	FramesReceived  uint64            `json:"frames_received"`
	FramesThrottled uint64            `json:"frames_throttled"`
	FramesReplaced  uint64            `json:"frames_replaced"`
	FramesProcessed uint64            `json:"frames_processed"`
	InferenceErrors uint64            `json:"inference_errors"`
	FPS             int               `json:"fps"`
	HasFPS          bool              `json:"has_fps"`
	LastDetections  int               `json:"last_detections"`
	Threshold       float64           `json:"threshold"`
	Viewers         int               `json:"viewers"`
	Timings         ProcessingTimings `json:"timings"`
}
