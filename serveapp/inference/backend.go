package inference

import (
	"fmt"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
)

// Tensor NHWC 순서의 float32 입력 텐서
type Tensor struct {
	Shape []int64
	Data  []float32
}

// nested tf.NewTensor 에 넘길 [N][H][W][C] 형태로 변환
func (t *Tensor) nested() ([][][][]float32, error) {
	if len(t.Shape) != 4 {
		return nil, fmt.Errorf("Invalid tensor rank: %d", len(t.Shape))
	}

	n, h, w, c := int(t.Shape[0]), int(t.Shape[1]), int(t.Shape[2]), int(t.Shape[3])
	if n*h*w*c != len(t.Data) {
		return nil, fmt.Errorf("Tensor shape %v does not match %d values", t.Shape, len(t.Data))
	}

	out := make([][][][]float32, n)
	idx := 0
	for b := 0; b < n; b++ {
		out[b] = make([][][]float32, h)
		for y := 0; y < h; y++ {
			out[b][y] = make([][]float32, w)
			for x := 0; x < w; x++ {
				out[b][y][x] = t.Data[idx : idx+c : idx+c]
				idx += c
			}
		}
	}

	return out, nil
}

// Backend 한 번의 forward pass 를 수행하는 추론 런타임
type Backend interface {
	// Run 배치 크기 1 의 입력에 대한 출력 확률 반환
	Run(input *Tensor) ([]float32, error)
	// OutputSize 출력 차원, 알 수 없으면 -1
	OutputSize() int
	Close() error
}

func openBackend(c Config, cfg *modelinfo.Config, nrLabels int) (Backend, error) {
	file, err := cfg.FormatPath(c.Backend)
	if err != nil {
		return nil, err
	}

	switch c.Backend {
	case modelinfo.FormatSavedModel:
		return newSavedModelBackend(file, cfg)
	case modelinfo.FormatTFLite:
		return newTFLiteBackend(file, c.Threads)
	case modelinfo.FormatONNX:
		return newONNXBackend(file, cfg, c.ONNXRuntimeLib, nrLabels)
	}

	return nil, fmt.Errorf("Unknown backend: %s", c.Backend)
}
