//go:build !gocv
// +build !gocv

package dataset

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// edgePadded pad 만큼 사방으로 늘리고 바깥은 가장 가까운 가장자리 픽셀로 채운 이미지.
// 원본 (x, y) 는 (x+pad, y+pad) 에 위치
func edgePadded(img *image.NRGBA, pad int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))

	clamp := func(v, n int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}

	for y := 0; y < h+2*pad; y++ {
		sy := clamp(y-pad, h)
		srcRow := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+sy):]
		dstRow := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < w+2*pad; x++ {
			sx := clamp(x-pad, w)
			copy(dstRow[x*4:x*4+4], srcRow[sx*4:sx*4+4])
		}
	}

	return out
}

// warp dstToSrc 로 bilinear 샘플링. draw 패키지는 픽셀 중심을 0.5 좌표로 보므로 보정
func warp(img *image.NRGBA, dstToSrc f64.Aff3) (*image.NRGBA, error) {
	b := img.Bounds()
	pad := max(b.Dx(), b.Dy())
	p := float64(pad)

	toCenter := f64.Aff3{1, 0, -0.5, 0, 1, -0.5}
	fromCenter := f64.Aff3{1, 0, 0.5 + p, 0, 1, 0.5 + p}
	m := compose(fromCenter, compose(dstToSrc, toCenter))

	src := edgePadded(img, pad)
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.BiLinear.Transform(dst, invert(m), src, src.Bounds(), draw.Src, nil)

	return dst, nil
}
