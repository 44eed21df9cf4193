//go:build gocv
// +build gocv

package dataset

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	"golang.org/x/image/math/f64"
)

// warp OpenCV warpAffine 으로 bilinear 샘플링, 경계는 BorderReplicate
func warp(img *image.NRGBA, dstToSrc f64.Aff3) (*image.NRGBA, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// warpAffine 은 src -> dst 행렬을 받아 내부에서 역변환
	forward := invert(dstToSrc)
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	for idx, v := range forward {
		m.SetDoubleAt(idx/3, idx%3, v)
	}

	dst := gocv.NewMat()
	defer dst.Close()

	b := img.Bounds()
	gocv.WarpAffineWithParams(src, &dst, m, image.Pt(b.Dx(), b.Dy()),
		gocv.InterpolationLinear, gocv.BorderReplicate, color.RGBA{})

	out, err := dst.ToImage()
	if err != nil {
		return nil, err
	}

	return imaging.Clone(out), nil
}
