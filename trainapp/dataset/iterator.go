package dataset

import (
	"fmt"
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
)

// Loader 이미지 파일을 학습 입력 크기로 읽음
type Loader struct {
	Height int
	Width  int
	// nil 이면 변환 없음
	Augment *Augmentation
}

// Load 파일을 읽어 (Height, Width) 로 nearest 리사이즈
func (l *Loader) Load(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return imaging.Resize(img, l.Width, l.Height, imaging.NearestNeighbor), nil
}

// Batch NHWC float32 이미지와 one-hot 레이블
type Batch struct {
	Images  []float32
	Labels  []float32
	Classes []int
	Size    int

	height, width, nrClasses int
}

// NestedImages [Size][H][W][3]
func (b *Batch) NestedImages() [][][][]float32 {
	out := make([][][][]float32, b.Size)
	pixel := 0
	for n := range out {
		out[n] = make([][][]float32, b.height)
		for y := range out[n] {
			out[n][y] = make([][]float32, b.width)
			for x := range out[n][y] {
				out[n][y][x] = b.Images[pixel*3 : pixel*3+3 : pixel*3+3]
				pixel++
			}
		}
	}
	return out
}

// NestedLabels [Size][nrClasses]
func (b *Batch) NestedLabels() [][]float32 {
	out := make([][]float32, b.Size)
	for n := range out {
		out[n] = b.Labels[n*b.nrClasses : (n+1)*b.nrClasses : (n+1)*b.nrClasses]
	}
	return out
}

// Shape 이미지 텐서 shape
func (b *Batch) Shape() []int64 {
	return []int64{int64(b.Size), int64(b.height), int64(b.width), 3}
}

// Iterator 샘플 목록을 배치 단위로 순회. 마지막 배치는 작을 수 있음
type Iterator struct {
	samples   []Sample
	nrClasses int
	batchSize int
	loader    *Loader
	shuffle   bool
	rng       *rand.Rand

	order []int
	pos   int
}

// NewIterator shuffle 이면 매 순회마다 rng 로 순서를 섞음
func NewIterator(samples []Sample, nrClasses, batchSize int, loader *Loader, shuffle bool, rng *rand.Rand) (*Iterator, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("Invalid batch size: %d", batchSize)
	}
	if nrClasses <= 0 {
		return nil, fmt.Errorf("Invalid number of classes: %d", nrClasses)
	}
	if shuffle && rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	it := &Iterator{
		samples:   samples,
		nrClasses: nrClasses,
		batchSize: batchSize,
		loader:    loader,
		shuffle:   shuffle,
		rng:       rng,
		order:     make([]int, len(samples)),
	}
	it.Reset()

	return it, nil
}

// Samples 전체 샘플 수
func (it *Iterator) Samples() int {
	return len(it.samples)
}

// Len 한 순회의 배치 수
func (it *Iterator) Len() int {
	return (len(it.samples) + it.batchSize - 1) / it.batchSize
}

// Reset 처음부터 다시 순회
func (it *Iterator) Reset() {
	for i := range it.order {
		it.order[i] = i
	}
	if it.shuffle {
		it.rng.Shuffle(len(it.order), func(i, j int) {
			it.order[i], it.order[j] = it.order[j], it.order[i]
		})
	}
	it.pos = 0
}

// Next 다음 배치. 순회가 끝나면 Reset 후 계속
func (it *Iterator) Next() (*Batch, error) {
	if len(it.samples) == 0 {
		return nil, fmt.Errorf("No samples")
	}
	if it.pos >= len(it.order) {
		it.Reset()
	}

	end := it.pos + it.batchSize
	if end > len(it.order) {
		end = len(it.order)
	}
	indices := it.order[it.pos:end]
	it.pos = end

	h, w := it.loader.Height, it.loader.Width
	batch := &Batch{
		Images:    make([]float32, 0, len(indices)*h*w*3),
		Labels:    make([]float32, len(indices)*it.nrClasses),
		Classes:   make([]int, len(indices)),
		Size:      len(indices),
		height:    h,
		width:     w,
		nrClasses: it.nrClasses,
	}

	for n, idx := range indices {
		sample := it.samples[idx]
		if sample.Class < 0 || sample.Class >= it.nrClasses {
			return nil, fmt.Errorf("Invalid class %d: %s", sample.Class, sample.Path)
		}

		img, err := it.loader.Load(sample.Path)
		if err != nil {
			return nil, err
		}
		if it.loader.Augment != nil {
			t := it.loader.Augment.Random(it.rng, h, w)
			if img, err = t.Apply(img); err != nil {
				return nil, fmt.Errorf("augment %s: %w", sample.Path, err)
			}
		}

		batch.Images = appendPixels(batch.Images, img)
		batch.Labels[n*it.nrClasses+sample.Class] = 1
		batch.Classes[n] = sample.Class
	}

	return batch, nil
}

// appendPixels RGB 값을 1/255 로 스케일
func appendPixels(dst []float32, img *image.NRGBA) []float32 {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			dst = append(dst, float32(c.R)/255, float32(c.G)/255, float32(c.B)/255)
		}
	}
	return dst
}
