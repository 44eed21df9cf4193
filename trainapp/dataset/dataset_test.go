package dataset

import (
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, path string, c color.NRGBA) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	require.NoError(t, imaging.Save(img, path))
}

func makeDataset(t *testing.T, classes map[string]int) string {
	dir := t.TempDir()
	shade := uint8(0)
	for class, n := range classes {
		classDir := filepath.Join(dir, class)
		require.NoError(t, os.MkdirAll(classDir, 0755))
		for i := 0; i < n; i++ {
			writeImage(t, filepath.Join(classDir, fmt.Sprintf("img_%02d.png", i)), color.NRGBA{shade, 100, 200, 255})
		}
		shade += 50
	}
	return dir
}

func TestLoad(t *testing.T) {
	dir := makeDataset(t, map[string]int{
		"Tomato___healthy":   5,
		"Apple___Apple_scab": 10,
		"Apple___healthy":    3,
	})
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "Apple___healthy", "notes.txt"), []byte("x"), 0644))

	d, err := Load(dir, 0.2)
	require.NoError(t, err)

	assert.Equal(t, []string{"Apple___Apple_scab", "Apple___healthy", "Tomato___healthy"}, d.Classes)
	// floor(0.2*10)=2, floor(0.2*3)=0, floor(0.2*5)=1
	assert.Len(t, d.Validation, 3)
	assert.Len(t, d.Train, 15)

	assert.Equal(t, 0, d.Validation[0].Class)
	assert.Equal(t, "img_00.png", filepath.Base(d.Validation[0].Path))
	assert.Equal(t, "img_01.png", filepath.Base(d.Validation[1].Path))
	assert.Equal(t, 2, d.Validation[2].Class)
	assert.Equal(t, "img_00.png", filepath.Base(d.Validation[2].Path))

	assert.Equal(t, "img_02.png", filepath.Base(d.Train[0].Path))
	for _, s := range d.Train {
		assert.NotEqual(t, ".txt", filepath.Ext(s.Path))
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(t.TempDir(), 0.2)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing"), 0.2)
	assert.Error(t, err)

	_, err = Load(t.TempDir(), 1.5)
	assert.Error(t, err)
}

func TestIterator(t *testing.T) {
	dir := makeDataset(t, map[string]int{"a": 3, "b": 3})
	d, err := Load(dir, 0)
	require.NoError(t, err)

	loader := &Loader{Height: 8, Width: 8}
	it, err := NewIterator(d.Train, len(d.Classes), 4, loader, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, it.Samples())
	assert.Equal(t, 2, it.Len())

	batch, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Size)
	assert.Equal(t, []int64{4, 8, 8, 3}, batch.Shape())
	assert.Len(t, batch.Images, 4*8*8*3)
	assert.Equal(t, []int{0, 0, 0, 1}, batch.Classes)
	assert.Equal(t, [][]float32{{1, 0}, {1, 0}, {1, 0}, {0, 1}}, batch.NestedLabels())

	nested := batch.NestedImages()
	require.Len(t, nested, 4)
	assert.InDelta(t, 100.0/255, nested[0][3][5][1], 1e-6)
	assert.InDelta(t, 200.0/255, nested[0][3][5][2], 1e-6)

	batch, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Size)
	assert.Equal(t, []int{1, 1}, batch.Classes)

	// 순회가 끝나면 처음부터
	batch, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 1}, batch.Classes)
}

func TestIteratorShuffle(t *testing.T) {
	samples := make([]Sample, 20)
	for i := range samples {
		samples[i] = Sample{Path: fmt.Sprint(i), Class: i % 2}
	}

	it, err := NewIterator(samples, 2, 5, &Loader{Height: 1, Width: 1}, true, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	first := append([]int(nil), it.order...)
	it.Reset()
	assert.NotEqual(t, first, it.order)
	assert.ElementsMatch(t, first, it.order)
}

func TestIteratorErrors(t *testing.T) {
	_, err := NewIterator(nil, 2, 0, &Loader{}, false, nil)
	assert.Error(t, err)

	it, err := NewIterator(nil, 2, 4, &Loader{}, false, nil)
	require.NoError(t, err)
	_, err = it.Next()
	assert.Error(t, err)

	it, err = NewIterator([]Sample{{Path: "missing.png"}}, 2, 4, &Loader{Height: 2, Width: 2}, false, nil)
	require.NoError(t, err)
	_, err = it.Next()
	assert.Error(t, err)
}

func TestAugmentationRanges(t *testing.T) {
	a := DefaultAugmentation()
	rng := rand.New(rand.NewSource(42))

	flipped := 0
	for i := 0; i < 1000; i++ {
		tr := a.Random(rng, 224, 200)
		assert.True(t, tr.Theta >= -20 && tr.Theta <= 20)
		assert.True(t, tr.Tx >= -0.2*224 && tr.Tx <= 0.2*224)
		assert.True(t, tr.Ty >= -0.2*200 && tr.Ty <= 0.2*200)
		assert.True(t, tr.Shear >= -0.2 && tr.Shear <= 0.2)
		assert.True(t, tr.Zx >= 0.8 && tr.Zx <= 1.2)
		assert.True(t, tr.Zy >= 0.8 && tr.Zy <= 1.2)
		if tr.FlipHorizontal {
			flipped++
		}
	}
	assert.InDelta(t, 500, flipped, 100)

	none := Augmentation{}.Random(rng, 10, 10)
	assert.True(t, none.Identity())
	assert.False(t, none.FlipHorizontal)
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 20), uint8(y * 20), 0, 255})
		}
	}
	return img
}

func TestWarpIdentity(t *testing.T) {
	img := gradient(6, 5)
	tr := Transform{Zx: 1, Zy: 1}

	out, err := warp(img, tr.dstToSrc(5, 6))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), out.Bounds())

	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			assert.InDelta(t, img.NRGBAAt(x, y).R, out.NRGBAAt(x, y).R, 1)
			assert.InDelta(t, img.NRGBAAt(x, y).G, out.NRGBAAt(x, y).G, 1)
		}
	}
}

func TestWarpShiftFillsNearest(t *testing.T) {
	img := gradient(6, 5)
	// 열 방향으로 한 칸 이동, 출력 (x, y) 는 입력 (x+1, y)
	tr := Transform{Ty: 1, Zx: 1, Zy: 1}

	out, err := tr.Apply(img)
	require.NoError(t, err)

	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			assert.InDelta(t, img.NRGBAAt(x+1, y).R, out.NRGBAAt(x, y).R, 1)
		}
		assert.InDelta(t, img.NRGBAAt(5, y).R, out.NRGBAAt(5, y).R, 1)
	}
}

func TestApplyRandomKeepsOpaque(t *testing.T) {
	img := gradient(12, 12)
	a := DefaultAugmentation()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		out, err := a.Random(rng, 12, 12).Apply(img)
		require.NoError(t, err)
		require.Equal(t, img.Bounds(), out.Bounds())

		// 영역 밖도 가장자리 픽셀로 채워지므로 투명한 픽셀이 없어야 함
		nonzero := 0
		for y := 0; y < 12; y++ {
			for x := 0; x < 12; x++ {
				c := out.NRGBAAt(x, y)
				require.Equal(t, uint8(255), c.A)
				if c.R != 0 || c.G != 0 {
					nonzero++
				}
			}
		}
		assert.Greater(t, nonzero, 0)
	}
}

func TestApplyFlip(t *testing.T) {
	img := gradient(4, 2)

	out, err := Transform{Zx: 1, Zy: 1, FlipHorizontal: true}.Apply(img)
	require.NoError(t, err)
	assert.Equal(t, img.NRGBAAt(0, 1), out.NRGBAAt(3, 1))
}

func TestInvert(t *testing.T) {
	tr := Transform{Theta: 15, Tx: 3, Ty: -2, Shear: 0.2, Zx: 1.1, Zy: 0.9}
	m := tr.dstToSrc(20, 30)
	id := compose(m, invert(m))

	expected := [6]float64{1, 0, 0, 0, 1, 0}
	for i := range expected {
		assert.InDelta(t, expected[i], id[i], 1e-9)
	}
}
