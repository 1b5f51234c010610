// Package capture turns incoming camera data into frames for the detection pipeline.
package capture

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/lawinko/vision-detector/internal/dto"
)

// FrameHandler consumes decoded frames. The detection Manager implements it.
type FrameHandler interface {
	HandleFrame(frame dto.Frame)
}

// DecodeJPEG decodes a complete JPEG frame, honouring EXIF orientation.
func DecodeJPEG(data []byte) (dto.Frame, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return dto.Frame{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return dto.Frame{Image: img}, nil
}
