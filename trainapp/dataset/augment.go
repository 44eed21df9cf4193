package dataset

import (
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"golang.org/x/image/math/f64"
)

// Augmentation 학습 이미지 랜덤 변환 범위. 각도는 degree
type Augmentation struct {
	RotationRange    float64 `yaml:"rotationRange"`
	WidthShiftRange  float64 `yaml:"widthShiftRange"`
	HeightShiftRange float64 `yaml:"heightShiftRange"`
	ShearRange       float64 `yaml:"shearRange"`
	ZoomRange        float64 `yaml:"zoomRange"`
	HorizontalFlip   bool    `yaml:"horizontalFlip"`
}

// DefaultAugmentation 학습 데이터 기본 변환 범위
func DefaultAugmentation() Augmentation {
	return Augmentation{
		RotationRange:    20,
		WidthShiftRange:  0.2,
		HeightShiftRange: 0.2,
		ShearRange:       0.2,
		ZoomRange:        0.2,
		HorizontalFlip:   true,
	}
}

// Transform 이미지 한 장에 적용 할 변환
type Transform struct {
	Theta          float64 // degree
	Tx, Ty         float64 // pixel, 행/열 방향
	Shear          float64 // degree
	Zx, Zy         float64
	FlipHorizontal bool
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Random (h, w) 이미지에 대한 랜덤 변환 생성
func (a Augmentation) Random(rng *rand.Rand, h, w int) Transform {
	t := Transform{Zx: 1, Zy: 1}

	if a.RotationRange != 0 {
		t.Theta = uniform(rng, -a.RotationRange, a.RotationRange)
	}
	if a.HeightShiftRange != 0 {
		t.Tx = uniform(rng, -a.HeightShiftRange, a.HeightShiftRange) * float64(h)
	}
	if a.WidthShiftRange != 0 {
		t.Ty = uniform(rng, -a.WidthShiftRange, a.WidthShiftRange) * float64(w)
	}
	if a.ShearRange != 0 {
		t.Shear = uniform(rng, -a.ShearRange, a.ShearRange)
	}
	if a.ZoomRange != 0 {
		t.Zx = uniform(rng, 1-a.ZoomRange, 1+a.ZoomRange)
		t.Zy = uniform(rng, 1-a.ZoomRange, 1+a.ZoomRange)
	}
	if a.HorizontalFlip {
		t.FlipHorizontal = rng.Float64() < 0.5
	}

	return t
}

// Identity 변환이 없는지 여부
func (t Transform) Identity() bool {
	return t.Theta == 0 && t.Tx == 0 && t.Ty == 0 && t.Shear == 0 && t.Zx == 1 && t.Zy == 1
}

type mat3 [3][3]float64

func (a mat3) mul(b mat3) mat3 {
	var c mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				c[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return c
}

// dstToSrc 출력 픽셀 (x, y) 를 입력 좌표로 옮기는 행렬. 픽셀 중심은 정수 좌표.
// 변환은 (행, 열) 좌표계에서 회전, 이동, shear, zoom 순서로 합성되고 이미지 중심 기준으로 적용
func (t Transform) dstToSrc(h, w int) f64.Aff3 {
	theta := t.Theta * math.Pi / 180
	shear := t.Shear * math.Pi / 180

	rotation := mat3{
		{math.Cos(theta), -math.Sin(theta), 0},
		{math.Sin(theta), math.Cos(theta), 0},
		{0, 0, 1},
	}
	shift := mat3{
		{1, 0, t.Tx},
		{0, 1, t.Ty},
		{0, 0, 1},
	}
	shearing := mat3{
		{1, -math.Sin(shear), 0},
		{0, math.Cos(shear), 0},
		{0, 0, 1},
	}
	zoom := mat3{
		{t.Zx, 0, 0},
		{0, t.Zy, 0},
		{0, 0, 1},
	}

	m := rotation.mul(shift).mul(shearing).mul(zoom)

	ox := float64(h)/2 + 0.5
	oy := float64(w)/2 + 0.5
	offset := mat3{{1, 0, ox}, {0, 1, oy}, {0, 0, 1}}
	reset := mat3{{1, 0, -ox}, {0, 1, -oy}, {0, 0, 1}}
	m = offset.mul(m).mul(reset)

	// (행, 열) -> (x, y)
	return f64.Aff3{
		m[1][1], m[1][0], m[1][2],
		m[0][1], m[0][0], m[0][2],
	}
}

func invert(m f64.Aff3) f64.Aff3 {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	det := a*e - b*d

	return f64.Aff3{
		e / det, -b / det, (b*f - c*e) / det,
		-d / det, a / det, (c*d - a*f) / det,
	}
}

// compose a·b
func compose(a, b f64.Aff3) f64.Aff3 {
	return f64.Aff3{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

// Apply 변환 적용. 영역 밖은 가장 가까운 가장자리 픽셀로 채움
func (t Transform) Apply(img *image.NRGBA) (*image.NRGBA, error) {
	out := img
	if !t.Identity() {
		h, w := img.Bounds().Dy(), img.Bounds().Dx()

		var err error
		if out, err = warp(img, t.dstToSrc(h, w)); err != nil {
			return nil, err
		}
	}

	if t.FlipHorizontal {
		out = imaging.FlipH(out)
	}

	return out, nil
}
