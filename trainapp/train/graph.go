package train

import (
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// GraphConfigFile 학습용 SavedModel 디렉토리의 graph 설정 파일
const GraphConfigFile = "config.yaml"

// GraphConfig 학습 graph 에서 사용하는 operation 이름
type GraphConfig struct {
	Tags          []string `yaml:"tags"`
	InputShape    []int32  `yaml:"inputShape"`
	NumClasses    int      `yaml:"numClasses"`
	NumBaseLayers int      `yaml:"numBaseLayers"`

	Input           string `yaml:"input"`
	Labels          string `yaml:"labels"`
	LearningRate    string `yaml:"learningRate"`
	Training        string `yaml:"training"`
	TrainableLayers string `yaml:"trainableLayers"`
	Train           string `yaml:"train"`
	Loss            string `yaml:"loss"`
	Accuracy        string `yaml:"accuracy"`
	Probabilities   string `yaml:"probabilities"`
	// 선택
	Init           string `yaml:"init"`
	ResetOptimizer string `yaml:"resetOptimizer"`

	SaveFilename string `yaml:"saveFilename"`
	Save         string `yaml:"save"`
	Restore      string `yaml:"restore"`

	// 같은 SavedModel 의 추론용 meta graph
	ServeTags   []string `yaml:"serveTags"`
	ServeInput  string   `yaml:"serveInput"`
	ServeOutput string   `yaml:"serveOutput"`
}

// DefaultGraphConfig tf.compat.v1 Saver 기본 이름을 따르는 설정
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		Tags:            []string{"train"},
		InputShape:      []int32{224, 224, 3},
		Input:           "input",
		Labels:          "labels",
		LearningRate:    "learning_rate",
		Training:        "training",
		TrainableLayers: "trainable_layers",
		Train:           "train",
		Loss:            "loss",
		Accuracy:        "accuracy",
		Probabilities:   "probabilities",
		SaveFilename:    "save/Const",
		Save:            "save/control_dependency",
		Restore:         "save/restore_all",
		ServeTags:       []string{"serve"},
		ServeInput:      "input",
		ServeOutput:     "probabilities",
	}
}

// LoadGraphConfig dir/config.yaml 을 기본값 위에 읽음
func LoadGraphConfig(dir string) (*GraphConfig, error) {
	cfg := DefaultGraphConfig()

	data, err := ioutil.ReadFile(filepath.Join(dir, GraphConfigFile))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", GraphConfigFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 필수 항목 확인
func (c *GraphConfig) Validate() error {
	if c.NumClasses <= 0 {
		return errors.New("numClasses must be positive")
	}
	if len(c.InputShape) != 3 || c.InputShape[2] != 3 {
		return fmt.Errorf("Invalid input shape: %v", c.InputShape)
	}

	required := map[string]string{
		"input":           c.Input,
		"labels":          c.Labels,
		"learningRate":    c.LearningRate,
		"training":        c.Training,
		"trainableLayers": c.TrainableLayers,
		"train":           c.Train,
		"loss":            c.Loss,
		"accuracy":        c.Accuracy,
		"probabilities":   c.Probabilities,
		"saveFilename":    c.SaveFilename,
		"save":            c.Save,
		"restore":         c.Restore,
		"serveInput":      c.ServeInput,
		"serveOutput":     c.ServeOutput,
	}
	for key, name := range required {
		if name == "" {
			return fmt.Errorf("Empty operation name: %s", key)
		}
	}

	return nil
}
