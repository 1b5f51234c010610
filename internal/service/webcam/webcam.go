// Package webcam reads frames from a local capture device through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"strconv"

	"github.com/benbjohnson/clock"
	"gocv.io/x/gocv"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/dto"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service/capture"
)

// maxReadFailures stops the loop after that many consecutive empty reads.
const maxReadFailures = 30

type Source struct {
	device  string
	camera  string
	logger  *logger.Logger
	handler capture.FrameHandler
	clock   clock.Clock
}

func NewSource(config *config.Config, logger *logger.Logger, handler capture.FrameHandler) *Source {
	return &Source{
		device:  config.CameraDevice,
		camera:  config.CameraName,
		logger:  logger,
		handler: handler,
		clock:   clock.New(),
	}
}

// openDevice accepts either a device index or a file/stream URL.
func openDevice(device string) (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(device); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(device)
}

// Run reads frames until ctx is cancelled or the device stops delivering.
func (s *Source) Run(ctx context.Context) error {
	webcam, err := openDevice(s.device)
	if err != nil {
		return fmt.Errorf("failed to open capture device %s: %w", s.device, err)
	}
	defer webcam.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	s.logger.Info("📷 Capturing camera %s from device %s", s.camera, s.device)

	failures := 0
	for ctx.Err() == nil {
		if ok := webcam.Read(&mat); !ok || mat.Empty() {
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("device %s stopped delivering frames", s.device)
			}
			continue
		}
		failures = 0

		img, err := mat.ToImage()
		if err != nil {
			s.logger.Warning("Camera %s: failed to convert frame: %v", s.camera, err)
			continue
		}
		s.handler.HandleFrame(dto.Frame{Camera: s.camera, Image: img, CapturedAt: s.clock.Now()})
	}
	return nil
}
