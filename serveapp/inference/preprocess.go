package inference

import (
	"bytes"
	"encoding/base64"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Decode 업로드 된 이미지 디코드. EXIF 방향정보를 반영
func Decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}

// Preprocess 이미지를 (height, width) 로 조정하고 [0, 1] 범위로 정규화.
// 결과는 배치 크기 1 의 [1, height, width, 3] 텐서
func Preprocess(img image.Image, height, width int) *Tensor {
	resized := imaging.Resize(img, width, height, imaging.CatmullRom)

	data := make([]float32, height*width*3)
	idx := 0
	for y := 0; y < height; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+width*4]
		for x := 0; x < width; x++ {
			// alpha 채널은 버림
			data[idx] = float32(row[x*4]) / 255
			data[idx+1] = float32(row[x*4+1]) / 255
			data[idx+2] = float32(row[x*4+2]) / 255
			idx += 3
		}
	}

	return &Tensor{
		Shape: []int64{1, int64(height), int64(width), 3},
		Data:  data,
	}
}

// opaque alpha 채널을 255 로 채움. 투명 영역의 색상은 유지
func opaque(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// EncodeBase64JPEG 응답에 포함 할 base64 JPEG 생성
func EncodeBase64JPEG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, opaque(img), imaging.JPEG); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
