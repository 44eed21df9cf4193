package modelinfo

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	// ConfigFile 모델 디렉토리의 설정 파일 이름
	ConfigFile string = "config.yaml"
	// LabelsFile 모델 디렉토리의 class 이름 파일
	LabelsFile string = "class_names.json"

	FormatSavedModel string = "savedmodel"
	FormatTFLite     string = "tflite"
	FormatONNX       string = "onnx"
)

// TrainingResult 학습 결과
type TrainingResult struct {
	Epochs             int       `yaml:"epochs"`
	FineTuneEpoch      int       `yaml:"fineTuneEpoch"`
	TrainLoss          []float32 `yaml:"trainLoss"`
	TrainAccuracy      []float32 `yaml:"trainAccuracy"`
	ValidationLoss     []float32 `yaml:"validationLoss"`
	ValidationAccuracy []float32 `yaml:"validationAccuracy"`
	EvalLoss           float32   `yaml:"evalLoss"`
	EvalAccuracy       float32   `yaml:"evalAccuracy"`
}

// Config 배포 된 모델 디렉토리의 설정정보
type Config struct {
	Name                string            `yaml:"name"`
	Type                string            `yaml:"type"`
	Tags                []string          `yaml:"tags"`
	InputShape          []int32           `yaml:"inputShape"`
	InputOperationName  string            `yaml:"inputOperationName"`
	OutputOperationName string            `yaml:"outputOperationName"`
	LabelsFile          string            `yaml:"labelsFile"`
	Formats             map[string]string `yaml:"formats"`
	TrainingResult      TrainingResult    `yaml:"trainingResult"`
	Description         string            `yaml:"description"`

	dir string
}

// Dir 설정을 읽어온 디렉토리
func (cfg *Config) Dir() string {
	return cfg.dir
}

// ImageSize 입력 이미지의 (height, width)
func (cfg *Config) ImageSize() (int, int, error) {
	if len(cfg.InputShape) < 2 {
		return 0, 0, fmt.Errorf("Invalid input shape: %v", cfg.InputShape)
	}
	h, w := int(cfg.InputShape[0]), int(cfg.InputShape[1])
	if h <= 0 || w <= 0 {
		return 0, 0, fmt.Errorf("Invalid input shape: %v", cfg.InputShape)
	}

	return h, w, nil
}

// FormatPath 배포 형식의 파일 경로
func (cfg *Config) FormatPath(format string) (string, error) {
	p, ok := cfg.Formats[format]
	if !ok {
		return "", fmt.Errorf("No such format in %s: %s", cfg.Name, format)
	}
	if filepath.IsAbs(p) {
		return p, nil
	}

	return path.Join(cfg.dir, p), nil
}

// LabelsPath class 이름 파일 경로
func (cfg *Config) LabelsPath() string {
	labelsFile := cfg.LabelsFile
	if labelsFile == "" {
		labelsFile = LabelsFile
	}

	return path.Join(cfg.dir, labelsFile)
}

// LoadConfig 모델 디렉토리의 config.yaml 로드
func LoadConfig(dir string) (*Config, error) {
	b, err := ioutil.ReadFile(path.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFile, err)
	}
	cfg.dir = dir

	return &cfg, nil
}

// SaveConfig 모델 디렉토리에 config.yaml 저장
func SaveConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return err
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	cfg.dir = dir

	return ioutil.WriteFile(path.Join(dir, ConfigFile), b, 0644)
}
