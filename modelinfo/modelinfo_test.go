package modelinfo

import (
	"io/ioutil"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelsKeepOrder(t *testing.T) {
	file := path.Join(t.TempDir(), LabelsFile)
	labels := []string{"Tomato___healthy", "Apple___Apple_scab", "Corn___Common_rust"}

	require.NoError(t, SaveLabels(file, labels))

	loaded, err := LoadLabels(file)
	require.NoError(t, err)
	require.Equal(t, labels, loaded)
}

func TestLoadLabelsRejectsInvalidList(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"empty.json":     `[]`,
		"blank.json":     `["a", ""]`,
		"duplicate.json": `["a", "b", "a"]`,
		"object.json":    `{"0": "a"}`,
	}
	for name, content := range cases {
		file := path.Join(dir, name)
		require.NoError(t, ioutil.WriteFile(file, []byte(content), 0644))

		_, err := LoadLabels(file)
		require.Error(t, err, name)
	}
}

func TestConfigFormatPath(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Name:       "plant_disease_model",
		Type:       FormatSavedModel,
		Tags:       []string{"serve"},
		InputShape: []int32{224, 224, 3},
		Formats: map[string]string{
			FormatSavedModel: ".",
			FormatTFLite:     "plant_disease_model.tflite",
			FormatONNX:       "/opt/models/plant.onnx",
		},
	}
	require.NoError(t, SaveConfig(dir, cfg))

	loaded, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, dir, loaded.Dir())

	p, err := loaded.FormatPath(FormatTFLite)
	require.NoError(t, err)
	require.Equal(t, path.Join(dir, "plant_disease_model.tflite"), p)

	p, err = loaded.FormatPath(FormatONNX)
	require.NoError(t, err)
	require.Equal(t, "/opt/models/plant.onnx", p)

	_, err = loaded.FormatPath("caffe")
	require.Error(t, err)

	h, w, err := loaded.ImageSize()
	require.NoError(t, err)
	require.Equal(t, 224, h)
	require.Equal(t, 224, w)

	require.Equal(t, path.Join(dir, LabelsFile), loaded.LabelsPath())
}
