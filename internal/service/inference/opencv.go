package inference

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
)

// The Caffe/TensorFlow SSD graphs loaded through OpenCV reserve class 0 for background.
const opencvClassOffset = 1

const detectionRowLen = 7

// opencvModel runs the graph through OpenCV's DNN module.
type opencvModel struct {
	net  gocv.Net
	size int
}

func newOpenCV(config *config.Config) (*opencvModel, error) {
	net := gocv.ReadNet(config.ModelPath, config.ModelConfigPath)
	if net.Empty() {
		return nil, errors.New("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, errors.New("failed to set preferable backend or target")
	}

	return &opencvModel{net: net, size: config.InputSize}, nil
}

func (m *opencvModel) InputSize() int {
	return m.size
}

func (m *opencvModel) Infer(pixels []byte) ([][]float32, error) {
	if err := checkInput(pixels, m.size); err != nil {
		return nil, err
	}

	mat, err := gocv.NewMatFromBytes(m.size, m.size, gocv.MatTypeCV8UC3, pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap input: %v", err)
	}
	defer mat.Close()

	// Pixels are already RGB, so no channel swap.
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(m.size, m.size), gocv.NewScalar(127.5, 127.5, 127.5, 0), false, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	rows := output.Reshape(1, output.Total()/detectionRowLen)
	defer rows.Close()

	data, err := rows.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detections: %v", err)
	}

	out := detection.OutputFromDetectionRows(data, detectionRowLen, opencvClassOffset)
	return out.Tensors(), nil
}

func (m *opencvModel) Close() error {
	return m.net.Close()
}
