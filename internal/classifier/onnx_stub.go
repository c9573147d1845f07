//go:build !cgo
// +build !cgo

package classifier

import (
	"context"
	"errors"
)

var errNoCGO = errors.New("ONNX runtime requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXScorer stub type when built without CGO (see onnx.go for real implementation).
type ONNXScorer struct{}

// NewONNXScorer returns an error when built without CGO.
func NewONNXScorer(_ string, _ Language, _ int) (*ONNXScorer, error) {
	return nil, errNoCGO
}

func (s *ONNXScorer) Score(context.Context, string, []string) (map[string]float64, error) {
	return nil, errNoCGO
}

func (s *ONNXScorer) Close() error { return nil }
