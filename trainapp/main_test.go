package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison-roh/leaf-disease-detection/modelinfo"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/config"
	"github.com/harrison-roh/leaf-disease-detection/trainapp/train"
)

func TestCheckGraph(t *testing.T) {
	g := train.DefaultGraphConfig()
	g.NumClasses = 2

	assert.NoError(t, checkGraph(&g, []string{"a", "b"}, 224, 30))
	assert.Error(t, checkGraph(&g, []string{"a", "b", "c"}, 224, 30))
	assert.Error(t, checkGraph(&g, []string{"a", "b"}, 128, 30))
}

func TestCallbacks(t *testing.T) {
	cbs := callbacks(config.Default())
	require.Len(t, cbs, 3)

	es, ok := cbs[1].(*train.EarlyStopping)
	require.True(t, ok)
	assert.Equal(t, "val_accuracy", es.Monitor)
	assert.Equal(t, 5, es.Patience)
	assert.True(t, es.RestoreBest)

	rl, ok := cbs[2].(*train.ReduceLROnPlateau)
	require.True(t, ok)
	assert.Equal(t, "val_loss", rl.Monitor)
	assert.Equal(t, float32(0.2), rl.Factor)
	assert.Equal(t, 3, rl.Patience)
	assert.Equal(t, float32(1e-6), rl.MinLR)
}

func TestModelConfig(t *testing.T) {
	cfg := config.Default()
	g := train.DefaultGraphConfig()
	h := &train.History{
		Epochs:             []int{0, 1},
		Loss:               []float32{1, 0.5},
		Accuracy:           []float32{0.5, 0.7},
		ValidationLoss:     []float32{1.1, 0.6},
		ValidationAccuracy: []float32{0.4, 0.65},
	}

	mc := modelConfig(cfg, &g, h, train.Metrics{Loss: 0.6, Accuracy: 0.65}, map[string]string{
		modelinfo.FormatSavedModel: "/out/saved_model",
	})

	assert.Equal(t, cfg.ModelName, mc.Name)
	assert.Equal(t, []string{"serve"}, mc.Tags)
	assert.Equal(t, []int32{224, 224, 3}, mc.InputShape)
	assert.Equal(t, "input", mc.InputOperationName)
	assert.Equal(t, "probabilities", mc.OutputOperationName)
	assert.Equal(t, 2, mc.TrainingResult.Epochs)
	assert.Equal(t, 10, mc.TrainingResult.FineTuneEpoch)
	assert.Equal(t, float32(0.65), mc.TrainingResult.EvalAccuracy)
}
