package constants

import "time"

const (
	DefaultPort      string = "5000"
	DefaultModelPath string = "/leaf/models/plant_disease_model"
	ImagesPath       string = "/leaf/images"

	DefaultBackend string = "savedmodel"
	DefaultOrigins string = "http://localhost:3000"

	// TopK 응답에 포함되는 예측 개수
	TopK int = 3

	MaxMultipartMemory int64 = 8 << 20
	ShutdownTimeout          = 5 * time.Second

	DefaultPredictionsLimit int = 50
)
