package inference

import (
	"fmt"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"
)

type savedModelBackend struct {
	model  *tf.SavedModel
	input  tf.Output
	output tf.Output
}

func newSavedModelBackend(dir string, cfg *modelinfo.Config) (Backend, error) {
	tags := cfg.Tags
	if len(tags) == 0 {
		tags = []string{"serve"}
	}

	model, err := tf.LoadSavedModel(dir, tags, nil)
	if err != nil {
		return nil, err
	}

	inputOp := model.Graph.Operation(cfg.InputOperationName)
	if inputOp == nil {
		model.Session.Close()
		return nil, fmt.Errorf("No such input operation: %s", cfg.InputOperationName)
	}
	outputOp := model.Graph.Operation(cfg.OutputOperationName)
	if outputOp == nil {
		model.Session.Close()
		return nil, fmt.Errorf("No such output operation: %s", cfg.OutputOperationName)
	}

	return &savedModelBackend{
		model:  model,
		input:  inputOp.Output(0),
		output: outputOp.Output(0),
	}, nil
}

func (b *savedModelBackend) Run(input *Tensor) ([]float32, error) {
	values, err := input.nested()
	if err != nil {
		return nil, err
	}

	inputTensor, err := tf.NewTensor(values)
	if err != nil {
		return nil, err
	}

	results, err := b.model.Session.Run(
		map[tf.Output]*tf.Tensor{
			b.input: inputTensor,
		},
		[]tf.Output{
			b.output,
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	probabilities, ok := results[0].Value().([][]float32)
	if !ok || len(probabilities) == 0 {
		return nil, fmt.Errorf("Unexpected output type: %T", results[0].Value())
	}

	return probabilities[0], nil
}

func (b *savedModelBackend) OutputSize() int {
	shape := b.output.Shape()
	if shape.NumDimensions() != 2 {
		return -1
	}

	return int(shape.Size(1))
}

func (b *savedModelBackend) Close() error {
	return b.model.Session.Close()
}
