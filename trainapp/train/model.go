package train

import (
	"fmt"
	"log/slog"

	tf "github.com/tensorflow/tensorflow/tensorflow/go"

	"github.com/harrison-roh/leaf-disease-detection/trainapp/dataset"
)

// Metrics 배치 한 번의 결과
type Metrics struct {
	Loss     float32
	Accuracy float32
}

// Model 학습 루프가 사용하는 모델
type Model interface {
	TrainStep(b *dataset.Batch, lr float32, trainableLayers int) (Metrics, error)
	EvalStep(b *dataset.Batch) (Metrics, [][]float32, error)
	Save(prefix string) error
	Restore(prefix string) error
	ResetOptimizer() error
	Close() error
}

// TFModel 학습용 TensorFlow SavedModel
type TFModel struct {
	model *tf.SavedModel
	cfg   *GraphConfig

	input, labels, learningRate, training, trainableLayers tf.Output
	loss, accuracy, probabilities, saveFilename            tf.Output

	train, save, restore, resetOptimizer *tf.Operation
}

// LoadModel dir 의 학습용 SavedModel 과 graph 설정을 읽음
func LoadModel(dir string) (*TFModel, error) {
	cfg, err := LoadGraphConfig(dir)
	if err != nil {
		return nil, err
	}

	model, err := tf.LoadSavedModel(dir, cfg.Tags, nil)
	if err != nil {
		return nil, err
	}

	m := &TFModel{model: model, cfg: cfg}
	if err := m.bind(); err != nil {
		model.Session.Close()
		return nil, err
	}

	if cfg.Init != "" {
		initOp := model.Graph.Operation(cfg.Init)
		if initOp == nil {
			model.Session.Close()
			return nil, fmt.Errorf("No such operation: %s", cfg.Init)
		}
		if _, err := model.Session.Run(nil, nil, []*tf.Operation{initOp}); err != nil {
			model.Session.Close()
			return nil, err
		}
	}

	slog.Info("Load training graph", "dir", dir, "classes", cfg.NumClasses, "baseLayers", cfg.NumBaseLayers)

	return m, nil
}

func (m *TFModel) operation(name string) (*tf.Operation, error) {
	op := m.model.Graph.Operation(name)
	if op == nil {
		return nil, fmt.Errorf("No such operation: %s", name)
	}
	return op, nil
}

func (m *TFModel) bind() error {
	outputs := []struct {
		name string
		out  *tf.Output
	}{
		{m.cfg.Input, &m.input},
		{m.cfg.Labels, &m.labels},
		{m.cfg.LearningRate, &m.learningRate},
		{m.cfg.Training, &m.training},
		{m.cfg.TrainableLayers, &m.trainableLayers},
		{m.cfg.Loss, &m.loss},
		{m.cfg.Accuracy, &m.accuracy},
		{m.cfg.Probabilities, &m.probabilities},
		{m.cfg.SaveFilename, &m.saveFilename},
	}
	for _, o := range outputs {
		op, err := m.operation(o.name)
		if err != nil {
			return err
		}
		*o.out = op.Output(0)
	}

	targets := []struct {
		name string
		op   **tf.Operation
	}{
		{m.cfg.Train, &m.train},
		{m.cfg.Save, &m.save},
		{m.cfg.Restore, &m.restore},
	}
	for _, t := range targets {
		op, err := m.operation(t.name)
		if err != nil {
			return err
		}
		*t.op = op
	}

	if m.cfg.ResetOptimizer != "" {
		op, err := m.operation(m.cfg.ResetOptimizer)
		if err != nil {
			return err
		}
		m.resetOptimizer = op
	}

	return nil
}

// Config graph 설정
func (m *TFModel) Config() *GraphConfig {
	return m.cfg
}

// Graph SavedModel 의 graph
func (m *TFModel) Graph() *tf.Graph {
	return m.model.Graph
}

func (m *TFModel) feeds(b *dataset.Batch, training bool) (map[tf.Output]*tf.Tensor, error) {
	images, err := tf.NewTensor(b.NestedImages())
	if err != nil {
		return nil, err
	}
	labels, err := tf.NewTensor(b.NestedLabels())
	if err != nil {
		return nil, err
	}
	flag, err := tf.NewTensor(training)
	if err != nil {
		return nil, err
	}

	return map[tf.Output]*tf.Tensor{
		m.input:    images,
		m.labels:   labels,
		m.training: flag,
	}, nil
}

func scalar(t *tf.Tensor) (float32, error) {
	v, ok := t.Value().(float32)
	if !ok {
		return 0, fmt.Errorf("Unexpected output type: %T", t.Value())
	}
	return v, nil
}

func metrics(results []*tf.Tensor) (Metrics, error) {
	loss, err := scalar(results[0])
	if err != nil {
		return Metrics{}, err
	}
	accuracy, err := scalar(results[1])
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Loss: loss, Accuracy: accuracy}, nil
}

// TrainStep 배치 한 번 학습. 마지막 trainableLayers 개의 base layer 와 head 만 갱신
func (m *TFModel) TrainStep(b *dataset.Batch, lr float32, trainableLayers int) (Metrics, error) {
	feeds, err := m.feeds(b, true)
	if err != nil {
		return Metrics{}, err
	}

	lrTensor, err := tf.NewTensor(lr)
	if err != nil {
		return Metrics{}, err
	}
	layers, err := tf.NewTensor(int32(trainableLayers))
	if err != nil {
		return Metrics{}, err
	}
	feeds[m.learningRate] = lrTensor
	feeds[m.trainableLayers] = layers

	results, err := m.model.Session.Run(
		feeds,
		[]tf.Output{m.loss, m.accuracy},
		[]*tf.Operation{m.train},
	)
	if err != nil {
		return Metrics{}, err
	}

	return metrics(results)
}

// EvalStep 배치 한 번 평가, class 확률도 반환
func (m *TFModel) EvalStep(b *dataset.Batch) (Metrics, [][]float32, error) {
	feeds, err := m.feeds(b, false)
	if err != nil {
		return Metrics{}, nil, err
	}

	results, err := m.model.Session.Run(
		feeds,
		[]tf.Output{m.loss, m.accuracy, m.probabilities},
		nil,
	)
	if err != nil {
		return Metrics{}, nil, err
	}

	mt, err := metrics(results)
	if err != nil {
		return Metrics{}, nil, err
	}
	probabilities, ok := results[2].Value().([][]float32)
	if !ok {
		return Metrics{}, nil, fmt.Errorf("Unexpected output type: %T", results[2].Value())
	}

	return mt, probabilities, nil
}

func (m *TFModel) runSaver(target *tf.Operation, prefix string) error {
	filename, err := tf.NewTensor(prefix)
	if err != nil {
		return err
	}

	_, err = m.model.Session.Run(
		map[tf.Output]*tf.Tensor{m.saveFilename: filename},
		nil,
		[]*tf.Operation{target},
	)
	return err
}

// Save 변수를 prefix 체크포인트로 저장
func (m *TFModel) Save(prefix string) error {
	if err := m.runSaver(m.save, prefix); err != nil {
		return fmt.Errorf("save %s: %w", prefix, err)
	}
	return nil
}

// Restore prefix 체크포인트에서 변수 복원
func (m *TFModel) Restore(prefix string) error {
	if err := m.runSaver(m.restore, prefix); err != nil {
		return fmt.Errorf("restore %s: %w", prefix, err)
	}
	return nil
}

// ResetOptimizer optimizer slot 초기화. graph 에 없으면 아무것도 하지 않음
func (m *TFModel) ResetOptimizer() error {
	if m.resetOptimizer == nil {
		return nil
	}
	_, err := m.model.Session.Run(nil, nil, []*tf.Operation{m.resetOptimizer})
	return err
}

// Close session 종료
func (m *TFModel) Close() error {
	return m.model.Session.Close()
}
