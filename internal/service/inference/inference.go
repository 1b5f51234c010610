// Package inference loads an SSD detector and runs it on preprocessed frames.
//
// Every backend returns the same four tensors: boxes [10*4], classes [10],
// scores [10] and the detection count [1].
package inference

import (
	"errors"
	"fmt"
	"os"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/logger"
)

// Backend names accepted in MODEL_BACKEND.
const (
	BackendTFLite = "tflite"
	BackendONNX   = "onnx"
	BackendOpenCV = "opencv"
)

var ErrUnknownBackend = errors.New("unknown model backend")

// Model is a loaded detector. Infer is not safe for concurrent use.
type Model interface {
	Infer(pixels []byte) ([][]float32, error)
	InputSize() int
	Close() error
}

// New loads the backend selected in config.
func New(config *config.Config, logger *logger.Logger) (Model, error) {
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}

	var (
		model Model
		err   error
	)
	switch config.ModelBackend {
	case BackendTFLite:
		model, err = newTFLite(config, logger)
	case BackendONNX:
		model, err = newONNX(config)
	case BackendOpenCV:
		model, err = newOpenCV(config)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, config.ModelBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", config.ModelBackend, err)
	}

	logger.Info("🧠 %s model loaded from %s (input %dx%d)", config.ModelBackend, config.ModelPath, model.InputSize(), model.InputSize())
	return model, nil
}

func checkInput(pixels []byte, size int) error {
	if want := size * size * 3; len(pixels) != want {
		return fmt.Errorf("input has %d bytes, want %d", len(pixels), want)
	}
	return nil
}
