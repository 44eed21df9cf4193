package inference

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
)

type fakeBackend struct {
	probabilities []float32
	outputSize    int
	err           error

	lastInput *Tensor
	closed    bool
}

func (b *fakeBackend) Run(input *Tensor) ([]float32, error) {
	b.lastInput = input
	if b.err != nil {
		return nil, b.err
	}
	return b.probabilities, nil
}

func (b *fakeBackend) OutputSize() int { return b.outputSize }

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

var testLabels = []string{
	"Apple___Apple_scab",
	"Apple___healthy",
	"Corn_(maize)___Common_rust_",
	"Tomato___Bacterial_spot",
	"Tomato___healthy",
}

func testConfig() *modelinfo.Config {
	return &modelinfo.Config{
		Name:                "plant_disease_model",
		InputShape:          []int32{224, 224, 3},
		InputOperationName:  "input",
		OutputOperationName: "probabilities",
	}
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: uint8(x % 256), B: 0, A: 255})
		}
	}
	return img
}

func TestNewWithBackendRejectsLabelMismatch(t *testing.T) {
	_, err := NewWithBackend(testConfig(), testLabels, "savedmodel", &fakeBackend{outputSize: 4})
	require.Error(t, err)

	i, err := NewWithBackend(testConfig(), testLabels, "savedmodel", &fakeBackend{outputSize: len(testLabels)})
	require.NoError(t, err)
	require.Equal(t, testLabels, i.Labels())

	// 출력 차원을 알 수 없는 backend 는 추론 시점에 검사
	_, err = NewWithBackend(testConfig(), testLabels, "savedmodel", &fakeBackend{outputSize: -1})
	require.NoError(t, err)
}

func TestPredictTopThreeSortedDescending(t *testing.T) {
	backend := &fakeBackend{
		probabilities: []float32{0.05, 0.6, 0.1, 0.2, 0.05},
		outputSize:    len(testLabels),
	}
	i, err := NewWithBackend(testConfig(), testLabels, "savedmodel", backend)
	require.NoError(t, err)

	predictions, err := i.Predict(testImage(640, 480), 3)
	require.NoError(t, err)
	require.Len(t, predictions, 3)

	require.Equal(t, "Apple___healthy", predictions[0].Disease)
	require.Equal(t, "Tomato___Bacterial_spot", predictions[1].Disease)
	require.Equal(t, "Corn_(maize)___Common_rust_", predictions[2].Disease)

	sum := 0.0
	for n, p := range predictions {
		require.GreaterOrEqual(t, p.Confidence, 0.0)
		require.LessOrEqual(t, p.Confidence, 100.0)
		if n > 0 {
			require.GreaterOrEqual(t, predictions[n-1].Confidence, p.Confidence)
		}
		sum += p.Confidence
	}
	require.LessOrEqual(t, sum, 100.0+1e-3)
	require.InDelta(t, 60.0, predictions[0].Confidence, 1e-4)

	require.Equal(t, "Corn (maize)", predictions[2].Plant)
	require.Equal(t, "Common rust", predictions[2].Condition)

	require.Equal(t, []int64{1, 224, 224, 3}, backend.lastInput.Shape)
}

func TestPredictTiesKeepLowerIndex(t *testing.T) {
	backend := &fakeBackend{
		probabilities: []float32{0.2, 0.2, 0.2, 0.2, 0.2},
		outputSize:    len(testLabels),
	}
	i, err := NewWithBackend(testConfig(), testLabels, "savedmodel", backend)
	require.NoError(t, err)

	predictions, err := i.Predict(testImage(32, 32), 3)
	require.NoError(t, err)
	require.Equal(t, testLabels[0], predictions[0].Disease)
	require.Equal(t, testLabels[1], predictions[1].Disease)
	require.Equal(t, testLabels[2], predictions[2].Disease)
}

func TestPredictKLargerThanLabels(t *testing.T) {
	labels := []string{"Grape___Black_rot", "Grape___healthy"}
	backend := &fakeBackend{probabilities: []float32{0.3, 0.7}, outputSize: 2}
	i, err := NewWithBackend(testConfig(), labels, "savedmodel", backend)
	require.NoError(t, err)

	predictions, err := i.Predict(testImage(10, 10), 3)
	require.NoError(t, err)
	require.Len(t, predictions, 2)
	require.Equal(t, "Grape___healthy", predictions[0].Disease)
}

func TestPredictErrors(t *testing.T) {
	backend := &fakeBackend{probabilities: []float32{0.5, 0.5}, outputSize: -1}
	i, err := NewWithBackend(testConfig(), testLabels, "savedmodel", backend)
	require.NoError(t, err)

	_, err = i.Predict(testImage(10, 10), 3)
	require.Error(t, err)

	backend.err = errors.New("session closed")
	_, err = i.Predict(testImage(10, 10), 3)
	require.EqualError(t, err, "session closed")

	_, err = i.Predict(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 3)
	require.Error(t, err)
}

func TestPreprocessNormalizesAndBatches(t *testing.T) {
	tensor := Preprocess(testImage(300, 200), 224, 224)
	require.Equal(t, []int64{1, 224, 224, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 224*224*3)

	for _, v := range tensor.Data {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
	// 빨간 채널은 모든 픽셀에서 255
	require.InDelta(t, 1.0, tensor.Data[0], 1e-6)
	require.InDelta(t, 0.0, tensor.Data[2], 1e-6)

	nested, err := tensor.nested()
	require.NoError(t, err)
	require.Len(t, nested, 1)
	require.Len(t, nested[0], 224)
	require.Len(t, nested[0][0], 224)
	require.Len(t, nested[0][0][0], 3)
}

func TestDecodeAndEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(20, 10)))

	img, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 20, img.Bounds().Dx())

	encoded, err := EncodeBase64JPEG(img)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	_, err = Decode(bytes.NewReader([]byte("definitely not an image")))
	require.Error(t, err)
}

func TestSplitLabel(t *testing.T) {
	plant, condition := SplitLabel("Tomato___Tomato_Yellow_Leaf_Curl_Virus")
	require.Equal(t, "Tomato", plant)
	require.Equal(t, "Tomato Yellow Leaf Curl Virus", condition)

	plant, condition = SplitLabel("healthy_leaf")
	require.Equal(t, "", plant)
	require.Equal(t, "healthy leaf", condition)
}
