package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/harrison-roh/leaf-disease-detection/trainapp/constants"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/dataset"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/export"
)

// Config 학습 앱 설정정보
type Config struct {
	DatasetPath   string `yaml:"datasetPath"`
	BaseModelPath string `yaml:"baseModelPath"`
	OutputPath    string `yaml:"outputPath"`
	ModelName     string `yaml:"modelName"`
	Description   string `yaml:"description"`

	ImageSize       int     `yaml:"imageSize"`
	BatchSize       int     `yaml:"batchSize"`
	Epochs          int     `yaml:"epochs"`
	FineTuneEpoch   int     `yaml:"fineTuneEpoch"`
	LearningRate    float32 `yaml:"learningRate"`
	UnfreezeLayers  int     `yaml:"unfreezeLayers"`
	ValidationSplit float64 `yaml:"validationSplit"`
	Seed            int64   `yaml:"seed"`

	Augmentation dataset.Augmentation `yaml:"augmentation"`

	EarlyStoppingPatience int     `yaml:"earlyStoppingPatience"`
	ReduceLRFactor        float32 `yaml:"reduceLRFactor"`
	ReduceLRPatience      int     `yaml:"reduceLRPatience"`
	MinLearningRate       float32 `yaml:"minLearningRate"`
	MinDelta              float32 `yaml:"minDelta"`

	TFLiteCommand string `yaml:"tfliteCommand"`
	// 비어 있으면 onnx 변환 생략
	ONNXCommand string `yaml:"onnxCommand"`

	LogLevel string `yaml:"logLevel"`
}

// Default 기본 설정
func Default() *Config {
	return &Config{
		DatasetPath:           constants.DatasetPath,
		BaseModelPath:         constants.BaseModelPath,
		OutputPath:            constants.OutputPath,
		ModelName:             constants.ModelName,
		Description:           "Plant leaf disease classifier (MobileNetV2 transfer learning)",
		ImageSize:             constants.ImageSize,
		BatchSize:             constants.BatchSize,
		Epochs:                constants.Epochs,
		FineTuneEpoch:         constants.FineTuneEpoch,
		LearningRate:          constants.LearningRate,
		UnfreezeLayers:        constants.UnfreezeLayers,
		ValidationSplit:       constants.ValidationSplit,
		Seed:                  constants.Seed,
		Augmentation:          dataset.DefaultAugmentation(),
		EarlyStoppingPatience: constants.EarlyStoppingPatience,
		ReduceLRFactor:        constants.ReduceLRFactor,
		ReduceLRPatience:      constants.ReduceLRPatience,
		MinLearningRate:       constants.MinLearningRate,
		MinDelta:              constants.MinDelta,
		TFLiteCommand:         export.DefaultTFLiteCommand,
		LogLevel:              "info",
	}
}

// Load 기본값 위에 설정 파일, .env 와 환경변수 순서로 적용
func Load(file string) (*Config, error) {
	cfg := Default()

	if file != "" {
		b, err := ioutil.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}

	// .env 파일이 없으면 환경변수만 사용
	_ = godotenv.Load()

	setEnv(&cfg.DatasetPath, "DATASET_PATH")
	setEnv(&cfg.BaseModelPath, "BASE_MODEL_DIR")
	setEnv(&cfg.OutputPath, "OUTPUT_DIR")
	setEnv(&cfg.TFLiteCommand, "TFLITE_CONVERT_COMMAND")
	setEnv(&cfg.ONNXCommand, "ONNX_CONVERT_COMMAND")
	setEnv(&cfg.LogLevel, "LOG_LEVEL")

	return cfg, nil
}

func setEnv(field *string, key string) {
	if value := os.Getenv(key); value != "" {
		*field = value
	}
}

// Validate 설정 값 검사
func (c *Config) Validate() error {
	switch {
	case c.DatasetPath == "":
		return errors.New("Empty dataset path")
	case c.BaseModelPath == "":
		return errors.New("Empty base model path")
	case c.OutputPath == "":
		return errors.New("Empty output path")
	case c.ImageSize <= 0:
		return fmt.Errorf("Invalid image size: %d", c.ImageSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("Invalid batch size: %d", c.BatchSize)
	case c.FineTuneEpoch <= 0 || c.Epochs <= c.FineTuneEpoch:
		return fmt.Errorf("Invalid epochs: fine-tune at %d of %d", c.FineTuneEpoch, c.Epochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("Invalid learning rate: %v", c.LearningRate)
	case c.UnfreezeLayers < 0:
		return fmt.Errorf("Invalid unfreeze layers: %d", c.UnfreezeLayers)
	case c.ValidationSplit <= 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("Invalid validation split: %v", c.ValidationSplit)
	case c.TFLiteCommand == "":
		return errors.New("Empty tflite convert command")
	}

	return nil
}

// InitLogger text slog 핸들러를 기본 로거로 설정
func InitLogger(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})
	slog.SetDefault(slog.New(handler))
}
