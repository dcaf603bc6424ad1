package ports

import (
	"context"

	"github.com/dchistyakov/image-insight/internal/core/domain"
)

// ImageFetcher retrieves raw image bytes from a caller-supplied URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SensitivityScorer runs the binary content-sensitivity backend over a
// preprocessed tensor and returns the positive-class probability in [0,1].
type SensitivityScorer interface {
	Score(ctx context.Context, tensor *domain.Tensor) (float64, error)
}

// Classifier runs the multi-class backend over the raw encoded image bytes
// and returns a score per human-readable label.
type Classifier interface {
	Classify(ctx context.Context, imageBytes []byte) (map[string]float64, error)
}
