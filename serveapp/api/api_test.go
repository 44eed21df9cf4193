package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/data"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/inference"
)

type stubBackend struct {
	probabilities []float32
}

func (b *stubBackend) Run(*inference.Tensor) ([]float32, error) { return b.probabilities, nil }
func (b *stubBackend) OutputSize() int                         { return len(b.probabilities) }
func (b *stubBackend) Close() error                            { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	return newRouter(t, nil)
}

func newRouter(t *testing.T, m *data.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cfg := &modelinfo.Config{
		Name:                "plant_disease_model",
		InputShape:          []int32{224, 224, 3},
		InputOperationName:  "input",
		OutputOperationName: "probabilities",
	}
	labels := []string{"Apple___Apple_scab", "Apple___healthy", "Tomato___Bacterial_spot", "Tomato___healthy"}
	backend := &stubBackend{probabilities: []float32{0.1, 0.05, 0.8, 0.05}}

	i, err := inference.NewWithBackend(cfg, labels, "savedmodel", backend)
	require.NoError(t, err)

	r := gin.New()
	r.Use(gin.Recovery(), Metrics())
	a := &APIs{I: i, M: m}
	a.Routes(r)

	return r
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{G: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename == "" {
		require.NoError(t, w.WriteField(field, ""))
	} else {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	var res HTTPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Error
}

func TestHome(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), `type="file"`)
	require.Contains(t, rec.Body.String(), "Leaf Disease Detection")
}

func TestPredict(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Len(t, res.Predictions, 3)
	require.Equal(t, "Tomato___Bacterial_spot", res.Predictions[0].Disease)
	require.Equal(t, "Tomato", res.Predictions[0].Plant)
	require.Equal(t, "Bacterial spot", res.Predictions[0].Condition)
	for n := 1; n < len(res.Predictions); n++ {
		require.GreaterOrEqual(t, res.Predictions[n-1].Confidence, res.Predictions[n].Confidence)
	}

	raw, err := base64.StdEncoding.DecodeString(res.Image)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 64, decoded.Bounds().Dx())
}

func TestPredictErrors(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name    string
		req     *http.Request
		message string
	}{
		{"missing field", uploadRequest(t, "image", "leaf.png", pngBytes(t)), "No file part"},
		{"empty file name", uploadRequest(t, "file", "", nil), "No selected file"},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader("{}")), ""},
		{"malformed image", uploadRequest(t, "file", "leaf.jpg", []byte("\xff\xd8 broken jpeg")), ""},
		{"truncated png", uploadRequest(t, "file", "leaf.png", pngBytes(t)[:40]), ""},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, tc.req)

		require.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
		message := decodeError(t, rec)
		require.NotEmpty(t, message, tc.name)
		if tc.message != "" {
			require.Equal(t, tc.message, message, tc.name)
		}
	}

	// 잘못된 요청 후에도 계속 서비스
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLabelsAndModel(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/labels", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var labels struct {
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &labels))
	require.Len(t, labels.Labels, 4)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"numberOfLabels":4`)

	// DB 없이 이미지 API 는 등록되지 않음
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "file", "leaf.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "leaf_inference_duration_seconds")
	require.Contains(t, rec.Body.String(), `leaf_predictions_total{label="Tomato___Bacterial_spot"}`)
}
