package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dchistyakov/image-insight/internal/core/domain"
	"github.com/dchistyakov/image-insight/internal/infrastructure/imaging"
)

// Graph node names declared by the sensitivity model.
const (
	inputName  = "data"
	outputName = "prob"
)

// Scorer wraps an ONNX Runtime session over the sensitivity model. The
// session and its bound tensors are created once at startup and shared by
// every request, so Run is serialized.
type Scorer struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputShape   []int64
}

func NewScorer(modelPath string, recipe imaging.RecipeConfig) (*Scorer, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx environment: %w", err)
	}

	inputShape := []int64{1, 3, int64(recipe.InputSize), int64(recipe.InputSize)}
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(inputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 2))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Scorer{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputShape:   inputShape,
	}, nil
}

// Score runs one forward pass and returns the probability at output index 1,
// the positive class by backend contract.
func (s *Scorer) Score(ctx context.Context, tensor *domain.Tensor) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !shapeEqual(tensor.Shape, s.inputShape) {
		return 0, domain.WrapError(domain.ErrInvalidInput, "score sensitivity",
			fmt.Errorf("tensor shape %v does not match model input %v", tensor.Shape, s.inputShape))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), tensor.Data)
	if err := s.session.Run(); err != nil {
		return 0, domain.WrapError(domain.ErrBackendUnavailable, "score sensitivity", err)
	}

	out := s.outputTensor.GetData()
	if len(out) < 2 {
		return 0, domain.WrapError(domain.ErrBackendUnavailable, "score sensitivity",
			fmt.Errorf("model produced %d outputs, want 2", len(out)))
	}
	return float64(out[1]), nil
}

func (s *Scorer) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}

func shapeEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
