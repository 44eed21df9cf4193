package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
)

const (
	// SavedModelDir 모델 디렉토리 안의 SavedModel 위치
	SavedModelDir = "saved_model"
	savedModelPB  = "saved_model.pb"
	variablesDir  = "variables"
	variablesName = "variables"

	DefaultTFLiteCommand = "tflite_convert --saved_model_dir={{.SavedModelDir}} --saved_model_tag_set=serve --output_file={{.Output}}"
)

// Saver 현재 변수를 체크포인트로 저장
type Saver interface {
	Save(prefix string) error
}

// Runner 외부 명령 실행
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner os/exec 로 실행하고 stdout, stderr 를 합쳐 반환
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandData 변환 명령 template 에 전달되는 값
type CommandData struct {
	SavedModelDir string
	Output        string
}

// Command 변환 명령 template 을 실행 인자로 변환
func Command(tmpl string, data CommandData) ([]string, error) {
	t, err := template.New("command").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return nil, fmt.Errorf("render command: %w", err)
	}

	args := strings.Fields(b.String())
	if len(args) == 0 {
		return nil, errors.New("Empty command")
	}
	return args, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Exporter 학습된 모델을 배포 형식으로 저장
type Exporter struct {
	// 배포 모델 디렉토리
	Dir string
	Run Runner
}

// New dir 에 저장하는 Exporter
func New(dir string) *Exporter {
	return &Exporter{Dir: dir, Run: ExecRunner}
}

// SavedModel baseDir 의 graph 와 현재 변수로 SavedModel 디렉토리 생성
func (e *Exporter) SavedModel(s Saver, baseDir string) (string, error) {
	dir := filepath.Join(e.Dir, SavedModelDir)
	if err := os.MkdirAll(filepath.Join(dir, variablesDir), os.ModePerm); err != nil {
		return "", err
	}

	if err := copyFile(filepath.Join(baseDir, savedModelPB), filepath.Join(dir, savedModelPB)); err != nil {
		return "", fmt.Errorf("copy graph: %w", err)
	}
	if err := s.Save(filepath.Join(dir, variablesDir, variablesName)); err != nil {
		return "", err
	}

	slog.Info("Export SavedModel", "dir", dir)
	return dir, nil
}

// Convert SavedModel 을 command 로 변환해 e.Dir/file 에 저장
func (e *Exporter) Convert(ctx context.Context, command, savedModelDir, file string) (string, error) {
	output := filepath.Join(e.Dir, file)
	args, err := Command(command, CommandData{SavedModelDir: savedModelDir, Output: output})
	if err != nil {
		return "", err
	}

	slog.Info("Convert model", "command", strings.Join(args, " "))
	out, err := e.Run(ctx, args[0], args[1:]...)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("No converted model: %w", err)
	}

	return output, nil
}

// WriteConfig class 이름과 config.yaml 저장. formats 경로는 e.Dir 기준 상대 경로로 기록
func (e *Exporter) WriteConfig(cfg *modelinfo.Config, labels []string) error {
	if err := modelinfo.SaveLabels(filepath.Join(e.Dir, modelinfo.LabelsFile), labels); err != nil {
		return err
	}
	cfg.LabelsFile = modelinfo.LabelsFile

	formats := make(map[string]string, len(cfg.Formats))
	for format, p := range cfg.Formats {
		if rel, err := filepath.Rel(e.Dir, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
		formats[format] = p
	}
	cfg.Formats = formats

	return modelinfo.SaveConfig(e.Dir, cfg)
}
