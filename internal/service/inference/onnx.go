package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
)

// Tensor names of the exported SSD graph.
const (
	onnxInputName = "image_tensor"
	onnxBoxes     = "detection_boxes"
	onnxClasses   = "detection_classes"
	onnxScores    = "detection_scores"
	onnxCount     = "num_detections"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initORT loads the onnxruntime shared library once per process.
func initORT(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// onnxModel runs a session with pre-allocated input and output tensors.
type onnxModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[uint8]
	boxes   *ort.Tensor[float32]
	classes *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
	count   *ort.Tensor[float32]
	size    int
}

func newONNX(config *config.Config) (_ *onnxModel, err error) {
	if err := initORT(config.OnnxLibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	size := config.InputSize
	m := &onnxModel{size: size}
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	if m.input, err = ort.NewTensor(ort.NewShape(1, int64(size), int64(size), 3), make([]uint8, size*size*3)); err != nil {
		return nil, err
	}
	if m.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, detection.MaxDetections, detection.BoxStride)); err != nil {
		return nil, err
	}
	if m.classes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, detection.MaxDetections)); err != nil {
		return nil, err
	}
	if m.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, detection.MaxDetections)); err != nil {
		return nil, err
	}
	if m.count, err = ort.NewEmptyTensor[float32](ort.NewShape(1)); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()
	if config.ModelThreads > 0 {
		if err = options.SetIntraOpNumThreads(config.ModelThreads); err != nil {
			return nil, err
		}
	}

	m.session, err = ort.NewAdvancedSession(config.ModelPath,
		[]string{onnxInputName},
		[]string{onnxBoxes, onnxClasses, onnxScores, onnxCount},
		[]ort.Value{m.input},
		[]ort.Value{m.boxes, m.classes, m.scores, m.count},
		options)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *onnxModel) InputSize() int {
	return m.size
}

func (m *onnxModel) Infer(pixels []byte) ([][]float32, error) {
	if err := checkInput(pixels, m.size); err != nil {
		return nil, err
	}
	copy(m.input.GetData(), pixels)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	return [][]float32{
		append([]float32(nil), m.boxes.GetData()...),
		append([]float32(nil), m.classes.GetData()...),
		append([]float32(nil), m.scores.GetData()...),
		append([]float32(nil), m.count.GetData()...),
	}, nil
}

func (m *onnxModel) Close() error {
	var err error
	if m.session != nil {
		err = multierr.Append(err, m.session.Destroy())
	}
	if m.input != nil {
		err = multierr.Append(err, m.input.Destroy())
	}
	for _, t := range []*ort.Tensor[float32]{m.boxes, m.classes, m.scores, m.count} {
		if t != nil {
			err = multierr.Append(err, t.Destroy())
		}
	}
	return err
}
