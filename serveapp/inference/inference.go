package inference

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/constants"
)

// Config 이미지 추론 모델 생성 설정정보
type Config struct {
	ModelPath      string
	Backend        string
	ONNXRuntimeLib string
	Threads        int
}

// Inference 이미지 추론. 로드 후에는 읽기 전용
type Inference struct {
	cfg     *modelinfo.Config
	backend Backend
	format  string
	labels  []string

	height, width int
}

// Prediction 이미지 추론 항목
type Prediction struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Plant      string  `json:"plant"`
	Condition  string  `json:"condition"`
}

// New 모델 디렉토리에서 설정, class 이름, 모델 로드
func New(c Config) (*Inference, error) {
	cfg, err := modelinfo.LoadConfig(c.ModelPath)
	if err != nil {
		return nil, err
	}

	labels, err := modelinfo.LoadLabels(cfg.LabelsPath())
	if err != nil {
		return nil, err
	}

	if c.Backend == "" {
		c.Backend = constants.DefaultBackend
	}

	backend, err := openBackend(c, cfg, len(labels))
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", c.Backend, err)
	}

	i, err := NewWithBackend(cfg, labels, c.Backend, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	slog.Info("Model loaded",
		"model", cfg.Name,
		"backend", c.Backend,
		"classes", len(labels),
		"height", i.height,
		"width", i.width)

	return i, nil
}

// NewWithBackend 이미 열린 backend 로 추론 생성
func NewWithBackend(cfg *modelinfo.Config, labels []string, format string, backend Backend) (*Inference, error) {
	h, w, err := cfg.ImageSize()
	if err != nil {
		return nil, err
	}

	if err := modelinfo.ValidateLabels(labels); err != nil {
		return nil, err
	}

	if n := backend.OutputSize(); n >= 0 && n != len(labels) {
		return nil, fmt.Errorf(
			"The number of class names(%d) and model outputs(%d) does not match",
			len(labels),
			n,
		)
	}

	return &Inference{
		cfg:     cfg,
		backend: backend,
		format:  format,
		labels:  labels,
		height:  h,
		width:   w,
	}, nil
}

// Predict 한 번의 forward pass 후 상위 k 개의 예측 반환
func (i *Inference) Predict(img image.Image, k int) ([]Prediction, error) {
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("Empty image: %dx%d", b.Dx(), b.Dy())
	}

	input := Preprocess(img, i.height, i.width)

	probabilities, err := i.backend.Run(input)
	if err != nil {
		return nil, err
	}

	return i.topK(probabilities, k)
}

func (i *Inference) topK(probabilities []float32, k int) ([]Prediction, error) {
	if len(probabilities) != len(i.labels) {
		return nil, fmt.Errorf(
			"The number of class names(%d) and predicted(%d) labels does not match",
			len(i.labels),
			len(probabilities),
		)
	}

	indices := make([]int, len(probabilities))
	for idx := range indices {
		indices[idx] = idx
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return probabilities[indices[a]] > probabilities[indices[b]]
	})

	if k <= 0 {
		k = constants.TopK
	}
	if k > len(indices) {
		k = len(indices)
	}

	predictions := make([]Prediction, k)
	for n, idx := range indices[:k] {
		plant, condition := SplitLabel(i.labels[idx])
		predictions[n] = Prediction{
			Disease:    i.labels[idx],
			Confidence: float64(probabilities[idx]) * 100,
			Plant:      plant,
			Condition:  condition,
		}
	}

	return predictions, nil
}

// SplitLabel "Plant___Condition" 형식의 데이터셋 레이블을 읽기 쉬운 이름으로 분리
func SplitLabel(label string) (plant, condition string) {
	readable := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	}

	parts := strings.SplitN(label, "___", 2)
	if len(parts) == 1 {
		return "", readable(label)
	}

	return readable(parts[0]), readable(parts[1])
}

// Labels class 이름 목록의 복사본
func (i *Inference) Labels() []string {
	labels := make([]string, len(i.labels))
	copy(labels, i.labels)
	return labels
}

// Info 추론 모델 정보
func (i *Inference) Info() map[string]interface{} {
	return map[string]interface{}{
		"model":          i.cfg.Name,
		"backend":        i.format,
		"inputShape":     i.cfg.InputShape,
		"numberOfLabels": len(i.labels),
		"inputOperator":  i.cfg.InputOperationName,
		"outputOperator": i.cfg.OutputOperationName,
		"description":    i.cfg.Description,
		"trainingResult": i.cfg.TrainingResult,
	}
}

// Destroy backend 해제
func (i *Inference) Destroy() {
	if err := i.backend.Close(); err != nil {
		slog.Error("Model close failed", "model", i.cfg.Name, "error", err)
	} else {
		slog.Info("Model successfully closed", "model", i.cfg.Name)
	}
}
