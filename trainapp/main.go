package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/config"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/constants"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/dataset"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/export"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/report"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/train"
)

func main() {
	configFile := flag.String("config", "", "Training config yaml (optional)")
	datasetPath := flag.String("dataset", "", "Path for dataset directory (one sub-directory per class)")
	baseModelPath := flag.String("base", "", "Path for trainable base SavedModel")
	outputPath := flag.String("output", "", "Path for exported model directory")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Config load failed", "file", *configFile, "error", err)
		os.Exit(1)
	}
	if *datasetPath != "" {
		cfg.DatasetPath = *datasetPath
	}
	if *baseModelPath != "" {
		cfg.BaseModelPath = *baseModelPath
	}
	if *outputPath != "" {
		cfg.OutputPath = *outputPath
	}

	config.InitLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg); err != nil {
		slog.Error("Training failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Model training complete and saved in various formats", "output", cfg.OutputPath)
}

// checkGraph 학습 graph 가 데이터셋과 맞는지 확인
func checkGraph(g *train.GraphConfig, classes []string, imageSize, unfreezeLayers int) error {
	if g.NumClasses != len(classes) {
		return fmt.Errorf("Mismatched number of classes: graph %d, dataset %d", g.NumClasses, len(classes))
	}
	if int(g.InputShape[0]) != imageSize || int(g.InputShape[1]) != imageSize {
		return fmt.Errorf("Mismatched input shape: graph %v, image size %d", g.InputShape, imageSize)
	}
	if g.NumBaseLayers > 0 && g.NumBaseLayers < unfreezeLayers {
		slog.Warn("Base model has fewer layers than unfreeze count", "layers", g.NumBaseLayers)
	}
	return nil
}

func callbacks(cfg *config.Config) []train.Callback {
	return []train.Callback{
		train.NewCheckpoint(filepath.Join(cfg.OutputPath, constants.CheckpointDir), "val_accuracy"),
		train.NewEarlyStopping("val_accuracy", cfg.EarlyStoppingPatience, true,
			filepath.Join(cfg.OutputPath, constants.EarlyStoppingDir)),
		train.NewReduceLROnPlateau("val_loss", cfg.ReduceLRFactor, cfg.ReduceLRPatience,
			cfg.MinLearningRate, cfg.MinDelta),
	}
}

// modelConfig 배포 모델 디렉토리의 config.yaml 내용
func modelConfig(cfg *config.Config, g *train.GraphConfig, h *train.History, eval train.Metrics, formats map[string]string) *modelinfo.Config {
	return &modelinfo.Config{
		Name:                cfg.ModelName,
		Type:                "tensorflow",
		Tags:                g.ServeTags,
		InputShape:          []int32{int32(cfg.ImageSize), int32(cfg.ImageSize), 3},
		InputOperationName:  g.ServeInput,
		OutputOperationName: g.ServeOutput,
		Formats:             formats,
		TrainingResult: modelinfo.TrainingResult{
			Epochs:             h.Len(),
			FineTuneEpoch:      cfg.FineTuneEpoch,
			TrainLoss:          h.Loss,
			TrainAccuracy:      h.Accuracy,
			ValidationLoss:     h.ValidationLoss,
			ValidationAccuracy: h.ValidationAccuracy,
			EvalLoss:           eval.Loss,
			EvalAccuracy:       eval.Accuracy,
		},
		Description: cfg.Description,
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rng := rand.New(rand.NewSource(cfg.Seed))

	ds, err := dataset.Load(cfg.DatasetPath, cfg.ValidationSplit)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	slog.Info("Found dataset",
		"path", ds.Path,
		"classes", len(ds.Classes),
		"train", len(ds.Train),
		"validation", len(ds.Validation))
	slog.Info("Class names", "classes", ds.Classes)

	if err := modelinfo.SaveLabels(filepath.Join(cfg.OutputPath, modelinfo.LabelsFile), ds.Classes); err != nil {
		return err
	}

	model, err := train.LoadModel(cfg.BaseModelPath)
	if err != nil {
		return fmt.Errorf("base model: %w", err)
	}
	defer model.Close()

	graph := model.Config()
	if err := checkGraph(graph, ds.Classes, cfg.ImageSize, cfg.UnfreezeLayers); err != nil {
		return err
	}

	trainIt, err := dataset.NewIterator(ds.Train, len(ds.Classes), cfg.BatchSize, &dataset.Loader{
		Height:  cfg.ImageSize,
		Width:   cfg.ImageSize,
		Augment: &cfg.Augmentation,
	}, true, rng)
	if err != nil {
		return err
	}
	validIt, err := dataset.NewIterator(ds.Validation, len(ds.Classes), cfg.BatchSize, &dataset.Loader{
		Height: cfg.ImageSize,
		Width:  cfg.ImageSize,
	}, false, nil)
	if err != nil {
		return err
	}

	trainer := &train.Trainer{
		Model:      model,
		Train:      trainIt,
		Validation: validIt,
		BatchSize:  cfg.BatchSize,
		Callbacks:  callbacks(cfg),
	}

	history, err := trainer.Run(train.FineTuneSchedule(cfg.Epochs, cfg.FineTuneEpoch, cfg.LearningRate, cfg.UnfreezeLayers))
	if err != nil {
		return err
	}

	if err := report.PlotHistory(report.History{
		Accuracy:           history.Accuracy,
		ValidationAccuracy: history.ValidationAccuracy,
		Loss:               history.Loss,
		ValidationLoss:     history.ValidationLoss,
	}, filepath.Join(cfg.OutputPath, constants.HistoryPlotFile)); err != nil {
		return fmt.Errorf("plot: %w", err)
	}

	e := export.New(cfg.OutputPath)
	savedModelDir, err := e.SavedModel(model, cfg.BaseModelPath)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	formats := map[string]string{modelinfo.FormatSavedModel: savedModelDir}

	eval, err := trainer.Evaluate(validIt)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	fmt.Printf("Validation Loss: %.4f\n", eval.Loss)
	fmt.Printf("Validation Accuracy: %.4f\n", eval.Accuracy)

	probabilities, err := trainer.Predict(validIt)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	yTrue := make([]int, len(ds.Validation))
	for i, s := range ds.Validation {
		yTrue[i] = s.Class
	}
	cm, err := report.ConfusionMatrix(yTrue, train.ArgMax(probabilities), len(ds.Classes))
	if err != nil {
		return err
	}
	classification, err := report.Classify(cm, ds.Classes)
	if err != nil {
		return err
	}
	fmt.Printf("\nClassification Report:\n%s", classification)
	if err := report.Save(filepath.Join(cfg.OutputPath, constants.ReportFile), eval.Loss, eval.Accuracy, cm, classification); err != nil {
		return err
	}

	tflite, err := e.Convert(ctx, cfg.TFLiteCommand, savedModelDir, constants.TFLiteFile)
	if err != nil {
		return fmt.Errorf("tflite: %w", err)
	}
	formats[modelinfo.FormatTFLite] = tflite

	if cfg.ONNXCommand != "" {
		onnx, err := e.Convert(ctx, cfg.ONNXCommand, savedModelDir, constants.ONNXFile)
		if err != nil {
			slog.Warn("ONNX conversion failed", "error", err)
		} else {
			formats[modelinfo.FormatONNX] = onnx
		}
	}

	return e.WriteConfig(modelConfig(cfg, graph, history, eval, formats), ds.Classes)
}
