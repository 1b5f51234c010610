package dto

// ThresholdRequest is the body of POST /api/threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// ThresholdResponse reports the active confidence threshold and its allowed range.
type ThresholdResponse struct {
	Threshold float64 `json:"threshold"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}
