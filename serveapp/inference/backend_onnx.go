package inference

import (
	"fmt"
	"sync"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	ort "github.com/yalue/onnxruntime_go"
)

type onnxBackend struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	outputSize   int
}

// onnxOutputSize 모델에 기록된 [N, classes] 출력의 class 수, 알 수 없으면 -1
func onnxOutputSize(outputs []ort.InputOutputInfo, name string) int {
	for _, info := range outputs {
		if info.Name != name {
			continue
		}
		if len(info.Dimensions) != 2 || info.Dimensions[1] <= 0 {
			return -1
		}
		return int(info.Dimensions[1])
	}
	return -1
}

func newONNXBackend(file string, cfg *modelinfo.Config, libPath string, nrLabels int) (Backend, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	h, w, err := cfg.ImageSize()
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(h), int64(w), 3))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	_, outputs, err := ort.GetInputOutputInfo(file)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to read ONNX model info: %w", err)
	}
	outputSize := onnxOutputSize(outputs, cfg.OutputOperationName)
	width := outputSize
	if width < 0 {
		width = nrLabels
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(file,
		[]string{cfg.InputOperationName}, []string{cfg.OutputOperationName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxBackend{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		outputSize:   outputSize,
	}, nil
}

func (b *onnxBackend) Run(input *Tensor) ([]float32, error) {
	// 입출력 텐서가 session 에 묶여 있으므로 직렬화
	b.mu.Lock()
	defer b.mu.Unlock()

	buf := b.inputTensor.GetData()
	if len(buf) != len(input.Data) {
		return nil, fmt.Errorf("onnx input expects %d values, got %d", len(buf), len(input.Data))
	}
	copy(buf, input.Data)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := b.outputTensor.GetData()
	probabilities := make([]float32, len(out))
	copy(probabilities, out)

	return probabilities, nil
}

func (b *onnxBackend) OutputSize() int {
	return b.outputSize
}

func (b *onnxBackend) Close() error {
	b.inputTensor.Destroy()
	b.outputTensor.Destroy()
	err := b.session.Destroy()
	ort.DestroyEnvironment()
	return err
}
