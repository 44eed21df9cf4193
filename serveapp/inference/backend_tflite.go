//go:build tflite
// +build tflite

package inference

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"
)

type tfliteBackend struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
}

func newTFLiteBackend(file string, threads int) (Backend, error) {
	model := tflite.NewModelFromFile(file)
	if model == nil {
		return nil, fmt.Errorf("Cannot load tflite model: %s", file)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if threads > 0 {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New("Cannot create tflite interpreter")
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("Allocate tflite tensors failed: %v", status)
	}

	if input := interpreter.GetInputTensor(0); input.Type() != tflite.Float32 {
		interpreter.Delete()
		model.Delete()
		return nil, fmt.Errorf("Unsupported tflite input type: %v", input.Type())
	}

	return &tfliteBackend{
		model:       model,
		interpreter: interpreter,
	}, nil
}

func (b *tfliteBackend) Run(input *Tensor) ([]float32, error) {
	// interpreter 는 동시 호출을 허용하지 않음
	b.mu.Lock()
	defer b.mu.Unlock()

	in := b.interpreter.GetInputTensor(0)
	buf := in.Float32s()
	if len(buf) != len(input.Data) {
		return nil, fmt.Errorf("tflite input expects %d values, got %d", len(buf), len(input.Data))
	}
	copy(buf, input.Data)

	if status := b.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tflite invoke failed: %v", status)
	}

	out := b.interpreter.GetOutputTensor(0).Float32s()
	probabilities := make([]float32, len(out))
	copy(probabilities, out)

	return probabilities, nil
}

func (b *tfliteBackend) OutputSize() int {
	output := b.interpreter.GetOutputTensor(0)
	if output.NumDims() != 2 {
		return -1
	}

	return output.Dim(1)
}

func (b *tfliteBackend) Close() error {
	b.interpreter.Delete()
	b.model.Delete()
	return nil
}
