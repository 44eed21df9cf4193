package constants

const (
	DatasetPath   string = "dataset/plant_disease"
	BaseModelPath string = "/leaf/base/mobilenet_v2"
	OutputPath    string = "/leaf/models/plant_disease_model"
	ModelName     string = "plant_disease_model"

	// MobileNetV2 기본 입력 크기
	ImageSize       int     = 224
	BatchSize       int     = 32
	Epochs          int     = 20
	FineTuneEpoch   int     = 10
	LearningRate    float32 = 0.0001
	UnfreezeLayers  int     = 30
	ValidationSplit float64 = 0.2
	Seed            int64   = 42

	EarlyStoppingPatience int     = 5
	ReduceLRFactor        float32 = 0.2
	ReduceLRPatience      int     = 3
	MinLearningRate       float32 = 1e-6
	MinDelta              float32 = 1e-4

	CheckpointDir    string = "checkpoints/best_model"
	EarlyStoppingDir string = "checkpoints/early_stopping"
	HistoryPlotFile  string = "training_history.png"
	ReportFile       string = "classification_report.txt"
	TFLiteFile       string = "plant_disease_model.tflite"
	ONNXFile         string = "plant_disease_model.onnx"
)
