package train

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrison-roh/leaf-disease-detection/trainapp/dataset"
)

// Batches 배치 공급자
type Batches interface {
	Next() (*dataset.Batch, error)
	Reset()
	Samples() int
	Len() int
}

// Phase 학습 단계. [InitialEpoch, Epochs) 구간을 학습
type Phase struct {
	Name            string
	InitialEpoch    int
	Epochs          int
	LearningRate    float32
	TrainableLayers int
	ResetOptimizer  bool
}

// State callback 과 공유하는 학습 상태
type State struct {
	Model        Model
	LearningRate float32
	StopTraining bool
}

// EpochLogs epoch 하나의 결과
type EpochLogs struct {
	Loss               float32
	Accuracy           float32
	ValidationLoss     float32
	ValidationAccuracy float32
	LearningRate       float32
}

// Get 지표 이름으로 값 조회
func (l EpochLogs) Get(name string) (float32, error) {
	switch name {
	case "loss":
		return l.Loss, nil
	case "accuracy":
		return l.Accuracy, nil
	case "val_loss":
		return l.ValidationLoss, nil
	case "val_accuracy":
		return l.ValidationAccuracy, nil
	case "lr":
		return l.LearningRate, nil
	}
	return 0, fmt.Errorf("Unknown metric: %s", name)
}

// History epoch 별 결과
type History struct {
	Epochs             []int
	Loss               []float32
	Accuracy           []float32
	ValidationLoss     []float32
	ValidationAccuracy []float32
	LearningRate       []float32
}

func (h *History) add(epoch int, logs EpochLogs) {
	h.Epochs = append(h.Epochs, epoch)
	h.Loss = append(h.Loss, logs.Loss)
	h.Accuracy = append(h.Accuracy, logs.Accuracy)
	h.ValidationLoss = append(h.ValidationLoss, logs.ValidationLoss)
	h.ValidationAccuracy = append(h.ValidationAccuracy, logs.ValidationAccuracy)
	h.LearningRate = append(h.LearningRate, logs.LearningRate)
}

// Append 다음 단계의 결과를 이어 붙임
func (h *History) Append(other *History) {
	h.Epochs = append(h.Epochs, other.Epochs...)
	h.Loss = append(h.Loss, other.Loss...)
	h.Accuracy = append(h.Accuracy, other.Accuracy...)
	h.ValidationLoss = append(h.ValidationLoss, other.ValidationLoss...)
	h.ValidationAccuracy = append(h.ValidationAccuracy, other.ValidationAccuracy...)
	h.LearningRate = append(h.LearningRate, other.LearningRate...)
}

// Len 기록된 epoch 수
func (h *History) Len() int {
	return len(h.Epochs)
}

// Trainer 학습 루프
type Trainer struct {
	Model      Model
	Train      Batches
	Validation Batches
	BatchSize  int
	Callbacks  []Callback
}

// Steps batchSize 로 나눈 몫 (나머지 버림)
func Steps(samples, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return samples / batchSize
}

type meanMetrics struct {
	loss, accuracy float64
	count          int
}

func (m *meanMetrics) update(mt Metrics, size int) {
	m.loss += float64(mt.Loss) * float64(size)
	m.accuracy += float64(mt.Accuracy) * float64(size)
	m.count += size
}

func (m *meanMetrics) result() Metrics {
	if m.count == 0 {
		return Metrics{}
	}
	return Metrics{
		Loss:     float32(m.loss / float64(m.count)),
		Accuracy: float32(m.accuracy / float64(m.count)),
	}
}

// Fit 한 단계 학습
func (t *Trainer) Fit(phase Phase) (*History, error) {
	steps := Steps(t.Train.Samples(), t.BatchSize)
	validationSteps := Steps(t.Validation.Samples(), t.BatchSize)
	if steps < 1 {
		return nil, fmt.Errorf("Not enough training samples: %d (batch size %d)", t.Train.Samples(), t.BatchSize)
	}
	if validationSteps < 1 {
		return nil, fmt.Errorf("Not enough validation samples: %d (batch size %d)", t.Validation.Samples(), t.BatchSize)
	}
	if phase.Epochs <= phase.InitialEpoch {
		return nil, fmt.Errorf("Invalid epochs: %d..%d", phase.InitialEpoch, phase.Epochs)
	}

	if phase.ResetOptimizer {
		if err := t.Model.ResetOptimizer(); err != nil {
			return nil, fmt.Errorf("reset optimizer: %w", err)
		}
	}

	state := &State{Model: t.Model, LearningRate: phase.LearningRate}
	for _, cb := range t.Callbacks {
		if err := cb.OnTrainBegin(state); err != nil {
			return nil, err
		}
	}

	slog.Info("Start training",
		"phase", phase.Name,
		"epochs", fmt.Sprintf("%d..%d", phase.InitialEpoch, phase.Epochs),
		"learningRate", phase.LearningRate,
		"trainableLayers", phase.TrainableLayers,
		"steps", steps,
		"validationSteps", validationSteps)

	history := &History{}
	for epoch := phase.InitialEpoch; epoch < phase.Epochs; epoch++ {
		start := time.Now()
		lr := state.LearningRate

		var train meanMetrics
		for step := 0; step < steps; step++ {
			batch, err := t.Train.Next()
			if err != nil {
				return history, err
			}
			mt, err := t.Model.TrainStep(batch, lr, phase.TrainableLayers)
			if err != nil {
				return history, fmt.Errorf("epoch %d step %d: %w", epoch+1, step+1, err)
			}
			train.update(mt, batch.Size)
		}

		val, _, err := t.run(t.Validation, validationSteps, false)
		if err != nil {
			return history, fmt.Errorf("epoch %d validation: %w", epoch+1, err)
		}

		tr := train.result()
		logs := EpochLogs{
			Loss:               tr.Loss,
			Accuracy:           tr.Accuracy,
			ValidationLoss:     val.Loss,
			ValidationAccuracy: val.Accuracy,
			LearningRate:       lr,
		}
		history.add(epoch, logs)

		slog.Info(fmt.Sprintf("Epoch %d/%d", epoch+1, phase.Epochs),
			"loss", logs.Loss,
			"accuracy", logs.Accuracy,
			"val_loss", logs.ValidationLoss,
			"val_accuracy", logs.ValidationAccuracy,
			"lr", lr,
			"elapsed", time.Since(start).Round(time.Millisecond).String())

		for _, cb := range t.Callbacks {
			if err := cb.OnEpochEnd(epoch, logs, state); err != nil {
				return history, err
			}
		}
		if state.StopTraining {
			break
		}
	}

	for _, cb := range t.Callbacks {
		if err := cb.OnTrainEnd(state); err != nil {
			return history, err
		}
	}

	return history, nil
}

// run 처음부터 steps 개 배치 평가
func (t *Trainer) run(batches Batches, steps int, collect bool) (Metrics, [][]float32, error) {
	var (
		mean          meanMetrics
		probabilities [][]float32
	)

	batches.Reset()
	for step := 0; step < steps; step++ {
		batch, err := batches.Next()
		if err != nil {
			return Metrics{}, nil, err
		}
		mt, probs, err := t.Model.EvalStep(batch)
		if err != nil {
			return Metrics{}, nil, err
		}
		mean.update(mt, batch.Size)
		if collect {
			probabilities = append(probabilities, probs...)
		}
	}

	return mean.result(), probabilities, nil
}

// Evaluate 전체 batches 평가
func (t *Trainer) Evaluate(batches Batches) (Metrics, error) {
	if batches.Len() == 0 {
		return Metrics{}, errors.New("No samples to evaluate")
	}
	mt, _, err := t.run(batches, batches.Len(), false)
	return mt, err
}

// Predict 전체 batches 의 class 확률 (순서 유지)
func (t *Trainer) Predict(batches Batches) ([][]float32, error) {
	if batches.Len() == 0 {
		return nil, errors.New("No samples to predict")
	}
	_, probabilities, err := t.run(batches, batches.Len(), true)
	return probabilities, err
}

// ArgMax 행 별 최대값 index. 같으면 앞쪽
func ArgMax(probabilities [][]float32) []int {
	out := make([]int, len(probabilities))
	for i, row := range probabilities {
		best := 0
		for j := range row {
			if row[j] > row[best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}

// FineTuneSchedule head 학습 후 base layer 일부를 풀어 lr/10 로 이어서 학습
func FineTuneSchedule(epochs, fineTuneEpoch int, lr float32, unfreezeLayers int) []Phase {
	return []Phase{
		{
			Name:            "head",
			InitialEpoch:    0,
			Epochs:          fineTuneEpoch,
			LearningRate:    lr,
			TrainableLayers: 0,
		},
		{
			Name:            "fine-tune",
			InitialEpoch:    fineTuneEpoch,
			Epochs:          epochs,
			LearningRate:    lr / 10,
			TrainableLayers: unfreezeLayers,
			ResetOptimizer:  true,
		},
	}
}

// Run phases 를 차례로 학습하고 결과를 합침
func (t *Trainer) Run(phases []Phase) (*History, error) {
	combined := &History{}
	for _, phase := range phases {
		h, err := t.Fit(phase)
		if h != nil {
			combined.Append(h)
		}
		if err != nil {
			return combined, fmt.Errorf("%s: %w", phase.Name, err)
		}
	}
	return combined, nil
}
