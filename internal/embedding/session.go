//go:build cgo
// +build cgo

package embedding

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initORT brings up the process-wide ONNX Runtime environment on first use.
func initORT() error {
	ortOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return ortErr
}

var encoderInputs = []string{"input_ids", "attention_mask", "token_type_ids"}

// EncoderSession runs a BERT-style model over one [1, maxTokens] sequence at a
// time and reads back a single [1, width] float output. Safe for concurrent use.
type EncoderSession struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  [3]*ort.Tensor[int64]
	output  *ort.Tensor[float32]
	width   int
}

// NewEncoderSession loads modelPath and binds its inputs and the named output.
func NewEncoderSession(modelPath, outputName string, maxTokens, width int) (*EncoderSession, error) {
	if err := initORT(); err != nil {
		return nil, err
	}
	s := &EncoderSession{width: width}
	bound := make([]ort.ArbitraryTensor, len(encoderInputs))
	for i, name := range encoderInputs {
		t, err := ort.NewTensor(ort.NewShape(1, int64(maxTokens)), make([]int64, maxTokens))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("allocate %s: %w", name, err)
		}
		s.inputs[i] = t
		bound[i] = t
	}
	var err error
	if s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width))); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("allocate %s: %w", outputName, err)
	}
	s.session, err = ort.NewAdvancedSession(modelPath, encoderInputs, []string{outputName},
		bound, []ort.ArbitraryTensor{s.output}, nil)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open onnx model %s: %w", modelPath, err)
	}
	return s, nil
}

// Run feeds one tokenized sequence and returns a copy of the output row.
func (s *EncoderSession) Run(ids, mask, types []int64) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, data := range [][]int64{ids, mask, types} {
		copy(s.inputs[i].GetData(), data)
	}
	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	row := make([]float32, s.width)
	copy(row, s.output.GetData())
	return row, nil
}

func (s *EncoderSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	for i, t := range s.inputs {
		if t != nil {
			_ = t.Destroy()
			s.inputs[i] = nil
		}
	}
	if s.output != nil {
		_ = s.output.Destroy()
		s.output = nil
	}
	return err
}
