package modelinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// ValidateLabels class 이름 목록 검사
func ValidateLabels(labels []string) error {
	if len(labels) == 0 {
		return errors.New("Empty class names")
	}

	seen := make(map[string]int, len(labels))
	for idx, label := range labels {
		if label == "" {
			return fmt.Errorf("Empty class name at %d", idx)
		}
		if prev, ok := seen[label]; ok {
			return fmt.Errorf("Duplicated class name %q at %d and %d", label, prev, idx)
		}
		seen[label] = idx
	}

	return nil
}

// LoadLabels class 이름 목록 로드. 순서가 모델 출력 순서
func LoadLabels(file string) ([]string, error) {
	b, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	if err := ValidateLabels(labels); err != nil {
		return nil, err
	}

	return labels, nil
}

// SaveLabels class 이름 목록 저장
func SaveLabels(file string, labels []string) error {
	if err := ValidateLabels(labels); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
		return err
	}

	b, err := json.Marshal(labels)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(file, b, 0644)
}
