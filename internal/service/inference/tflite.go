package inference

import (
	"errors"
	"fmt"

	"github.com/mattn/go-tflite"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/detection"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/service/preprocess"
)

type tfliteModel struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	size        int
	floatInput  bool
	floats      []float32
}

func newTFLite(config *config.Config, logger *logger.Logger) (*tfliteModel, error) {
	model := tflite.NewModelFromFile(config.ModelPath)
	if model == nil {
		return nil, errors.New("failed to create model")
	}

	options := tflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return nil, errors.New("interpreter options failed to be created")
	}
	if config.ModelThreads > 0 {
		options.SetNumThread(config.ModelThreads)
	}
	options.SetErrorReporter(func(msg string, userData interface{}) {
		logger.Error("tflite: %s", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to create interpreter")
	}

	m := &tfliteModel{model: model, options: options, interpreter: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		m.Close()
		return nil, errors.New("failed to allocate tensors")
	}

	input := interpreter.GetInputTensor(0)
	if input.NumDims() != 4 || input.Dim(1) != input.Dim(2) || input.Dim(3) != 3 {
		m.Close()
		return nil, fmt.Errorf("unsupported input shape %v", input.Shape())
	}
	if n := interpreter.GetOutputTensorCount(); n < detection.TensorCount {
		m.Close()
		return nil, fmt.Errorf("model has %d outputs, want %d", n, detection.TensorCount)
	}

	m.size = input.Dim(1)
	m.floatInput = input.Type() == tflite.Float32
	return m, nil
}

func (m *tfliteModel) InputSize() int {
	return m.size
}

func (m *tfliteModel) Infer(pixels []byte) ([][]float32, error) {
	if err := checkInput(pixels, m.size); err != nil {
		return nil, err
	}

	input := m.interpreter.GetInputTensor(0)
	var status tflite.Status
	if m.floatInput {
		m.floats = preprocess.Float32Into(m.floats, pixels)
		status = input.CopyFromBuffer(m.floats)
	} else {
		status = input.CopyFromBuffer(pixels)
	}
	if status != tflite.OK {
		return nil, errors.New("copying to buffer failed")
	}

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New("invoke failed")
	}

	tensors := make([][]float32, detection.TensorCount)
	for i := range tensors {
		out := m.interpreter.GetOutputTensor(i)
		if out.Type() != tflite.Float32 {
			return nil, fmt.Errorf("output %d has type %s, want float32", i, out.Type())
		}
		// Float32s aliases interpreter memory that the next Invoke overwrites.
		tensors[i] = append([]float32(nil), out.Float32s()...)
	}
	return tensors, nil
}

func (m *tfliteModel) Close() error {
	if m.interpreter != nil {
		m.interpreter.Delete()
	}
	if m.options != nil {
		m.options.Delete()
	}
	if m.model != nil {
		m.model.Delete()
	}
	return nil
}
