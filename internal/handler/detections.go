package handler

import (
	"encoding/json"
	"image"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/lawinko/vision-detector/internal/detection"
	"github.com/lawinko/vision-detector/internal/dto"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service"
)

// RenderFunc draws detections on a frame and encodes it as JPEG.
type RenderFunc func(img image.Image, detections []detection.Detection, target detection.Resolution) ([]byte, error)

// writeJSON encodes v before committing the status, so an encoding failure is a 500.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

// DetectionsHandler returns the most recent decoded frame, or 204 before the first one.
func DetectionsHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := manager.Latest()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, snap.Result)
	}
}

// ThresholdHandler reads or updates the live confidence threshold.
// POST accepts {"threshold": x} or a form value; the stored value is clamped.
func ThresholdHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold := manager.Threshold()

		if r.Method == http.MethodPost {
			value, ok := parseThreshold(r)
			if !ok {
				http.Error(w, "Invalid threshold", http.StatusBadRequest)
				return
			}
			stored := threshold.Set(value)
			logger.Info("Confidence threshold set to %.2f", stored)
		}

		min, max := threshold.Bounds()
		writeJSON(w, http.StatusOK, dto.ThresholdResponse{Threshold: threshold.Load(), Min: min, Max: max})
	}
}

func parseThreshold(r *http.Request) (float64, bool) {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "application/json" {
		var req dto.ThresholdRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Threshold == nil {
			return 0, false
		}
		return *req.Threshold, !math.IsNaN(*req.Threshold)
	}
	value, err := strconv.ParseFloat(r.FormValue("threshold"), 64)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

// StatsHandler reports pipeline counters.
func StatsHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Stats())
	}
}

// SnapshotHandler returns the latest processed frame with its detections drawn on it.
func SnapshotHandler(manager *service.Manager, render RenderFunc, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := manager.Latest()
		if !ok || snap.Frame == nil {
			http.Error(w, "No frame processed yet", http.StatusNotFound)
			return
		}

		jpeg, err := render(snap.Frame, snap.Result.Detections, snap.Result.Target)
		if err != nil {
			logger.Error("Failed to render snapshot: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(jpeg)
	}
}
