//go:build !tflite
// +build !tflite

package inference

import "errors"

func newTFLiteBackend(_ string, _ int) (Backend, error) {
	return nil, errors.New("tflite build tag is not enabled")
}
