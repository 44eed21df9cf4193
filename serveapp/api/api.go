package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/constants"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/data"
	"github.com/harrison-roh/leaf-disease-detection/serveapp/inference"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	errNoFilePart     = errors.New("No file part")
	errNoSelectedFile = errors.New("No selected file")
)

// APIs api 핸들러
type APIs struct {
	I *inference.Inference
	// M 은 DB 가 설정되지 않으면 nil
	M *data.Manager
}

// PredictResponse 추론 응답
type PredictResponse struct {
	Success     bool                   `json:"success"`
	Predictions []inference.Prediction `json:"predictions"`
	Image       string                 `json:"image"`
}

// Routes 핸들러를 router 에 등록. 이미지/기록 API 는 DB 가 있을 때만 등록
func (a *APIs) Routes(r *gin.Engine) {
	r.SetHTMLTemplate(Templates())

	r.GET("/", a.Home)
	r.POST("/predict", a.Predict)
	r.GET("/health", a.Health)
	r.GET("/labels", a.ListLabels)
	r.GET("/model", a.ShowModel)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.M == nil {
		return
	}

	imagesGroup := r.Group("/images")
	{
		imagesGroup.GET("", a.ListImages)
		imagesGroup.POST("", a.UploadImages)
		imagesGroup.DELETE("", a.DeleteImages)
	}

	r.GET("/predictions", a.ListPredictions)
}

// Home 업로드 페이지
func (a *APIs) Home(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":      "Leaf Disease Detection",
		"predictURL": "/predict",
	})
}

// Health 상태 확인
func (a *APIs) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// ListLabels class 이름 목록 반환
func (a *APIs) ListLabels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"labels": a.I.Labels(),
	})
}

// ShowModel 추론 모델 정보 반환
func (a *APIs) ShowModel(c *gin.Context) {
	c.JSON(http.StatusOK, a.I.Info())
}

// Predict 업로드 된 이미지의 상위 3 개 질병 예측
func (a *APIs) Predict(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			// 파일을 선택하지 않은 브라우저는 빈 파일명을 보내고, 이는 일반 form 값으로 파싱 됨
			if form := c.Request.MultipartForm; form != nil && len(form.Value["file"]) > 0 {
				Error(c, http.StatusBadRequest, errNoSelectedFile)
				return
			}
			Error(c, http.StatusBadRequest, errNoFilePart)
			return
		}
		Error(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		Error(c, http.StatusBadRequest, errNoSelectedFile)
		return
	}

	img, err := inference.Decode(file)
	if err != nil {
		Error(c, http.StatusBadRequest, err)
		return
	}

	t0 := time.Now()
	predictions, err := a.I.Predict(img, constants.TopK)
	if err != nil {
		slog.Error("Prediction failed", "file", header.Filename, "error", err)
		Error(c, http.StatusInternalServerError, err)
		return
	}
	elapsed := time.Since(t0)
	inferenceDuration.Observe(elapsed.Seconds())

	encoded, err := inference.EncodeBase64JPEG(img)
	if err != nil {
		Error(c, http.StatusInternalServerError, err)
		return
	}

	if len(predictions) > 0 {
		top := predictions[0]
		predictionCount.WithLabelValues(top.Disease).Inc()

		if a.M != nil {
			if _, err := a.M.RecordPrediction(header.Filename, top.Disease, top.Confidence); err != nil {
				slog.Warn("Prediction record failed", "file", header.Filename, "error", err)
			}
		}
	}

	slog.Debug("Predicted",
		"file", header.Filename,
		"bytes", header.Size,
		"elapsed(ms)", elapsed.Milliseconds())

	c.JSON(http.StatusOK, PredictResponse{
		Success:     true,
		Predictions: predictions,
		Image:       encoded,
	})
}

// UploadImages 학습용 image 업로드
func (a *APIs) UploadImages(c *gin.Context) {
	label := c.Query("label")
	if label == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty `label`"))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		Error(c, http.StatusBadRequest, err)
		return
	}
	images := form.File["images[]"]
	_, verbose := c.GetQuery("verbose")

	if result, err := a.M.SaveImages(label, images, c.SaveUploadedFile, verbose); err != nil {
		Error(c, http.StatusBadRequest, err)
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// DeleteImages image 삭제
func (a *APIs) DeleteImages(c *gin.Context) {
	label := c.Query("label")
	fileName := c.Query("filename")
	orgFileName := c.Query("orgfilename")
	_, all := c.GetQuery("all")
	_, verbose := c.GetQuery("verbose")

	if result, err := a.M.DeleteImages(label, fileName, orgFileName, all, verbose); err != nil {
		if errors.Is(err, data.ErrNoFilter) {
			Error(c, http.StatusBadRequest, err)
		} else {
			Error(c, http.StatusInternalServerError, err)
		}
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// ListImages image 목록 반환
func (a *APIs) ListImages(c *gin.Context) {
	if result, err := a.M.ListImages(c.Query("label")); err != nil {
		Error(c, http.StatusBadRequest, err)
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// ListPredictions 최근 추론 기록 반환
func (a *APIs) ListPredictions(c *gin.Context) {
	limit := constants.DefaultPredictionsLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			Error(c, http.StatusBadRequest, err)
			return
		}
		limit = n
	}

	if predictions, err := a.M.ListPredictions(limit); err != nil {
		Error(c, http.StatusBadRequest, err)
	} else {
		c.JSON(http.StatusOK, gin.H{
			"predictions": predictions,
		})
	}
}

// HTTPError api 에러 메시지
type HTTPError struct {
	Error string `json:"error"`
}

// Error api 에러를 담은 json 응답 생성
func Error(c *gin.Context, status int, err error) {
	c.JSON(status, HTTPError{
		Error: err.Error(),
	})
}
