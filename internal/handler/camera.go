package handler

import (
	"io"
	"net"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service/capture"
)

// maxUploadSize limits a single uploaded JPEG frame.
const maxUploadSize = 8 << 20

// cameraName resolves the camera from ?camera=, then the CAMERA_NAMES mapping of the sender IP.
func cameraName(r *http.Request, cfg *config.Config) string {
	if name := r.URL.Query().Get("camera"); name != "" {
		return name
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if name, ok := cfg.CameraNames[ip]; ok {
		return name
	}
	return "unknown_" + ip
}

// CameraWebsocketHandler accepts a camera connection that sends one JPEG per message.
func CameraWebsocketHandler(frames capture.FrameHandler, cfg *config.Config, logger *logger.Logger, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()
		connection.SetReadLimit(maxUploadSize)

		camera := cameraName(r, cfg)
		logger.Info("Camera %s connected", camera)

		for {
			messageType, data, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Camera %s disconnected", camera)
				} else {
					logger.Error("Error reading camera message: %v", err)
				}
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}

			frame, err := capture.DecodeJPEG(data)
			if err != nil {
				logger.Warning("Camera %s: %v", camera, err)
				continue
			}
			frame.Camera = camera
			frame.CapturedAt = clk.Now()
			frames.HandleFrame(frame)
		}
	}
}

// UploadHandler handles POST /camera/upload with a JPEG request body.
func UploadHandler(frames capture.FrameHandler, cfg *config.Config, logger *logger.Logger, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
		if err != nil {
			http.Error(w, "Frame too large", http.StatusRequestEntityTooLarge)
			return
		}

		frame, err := capture.DecodeJPEG(data)
		if err != nil {
			logger.Warning("Rejected upload: %v", err)
			http.Error(w, "Invalid image", http.StatusBadRequest)
			return
		}
		frame.Camera = cameraName(r, cfg)
		frame.CapturedAt = clk.Now()
		frames.HandleFrame(frame)

		w.WriteHeader(http.StatusAccepted)
	}
}
