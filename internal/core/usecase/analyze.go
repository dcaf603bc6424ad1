package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dchistyakov/image-insight/internal/core/domain"
	"github.com/dchistyakov/image-insight/internal/core/ports"
	"github.com/dchistyakov/image-insight/internal/infrastructure/imaging"
	"github.com/dchistyakov/image-insight/internal/infrastructure/resilience"
	"github.com/dchistyakov/image-insight/internal/infrastructure/workerpool"
	"github.com/dchistyakov/image-insight/internal/observability/metrics"
)

// AnalyzeImageUseCase drives one request through the pipeline: fetch,
// decode, dual preprocessing, both inference backends, assembly. The fetch
// stays on the caller's goroutine (pure I/O); everything CPU-bound runs
// under the bounded worker pool so a heavy image cannot starve other
// requests' I/O.
type AnalyzeImageUseCase struct {
	fetcher    ports.ImageFetcher
	scorer     ports.SensitivityScorer
	classifier ports.Classifier
	recipe     imaging.RecipeConfig
	pool       *workerpool.Pool
	exec       *resilience.Executor
	metrics    *metrics.ServiceMetrics
	service    string
	topK       int
}

func NewAnalyzeImageUseCase(
	fetcher ports.ImageFetcher,
	scorer ports.SensitivityScorer,
	classifier ports.Classifier,
	recipe imaging.RecipeConfig,
	pool *workerpool.Pool,
	exec *resilience.Executor,
	m *metrics.ServiceMetrics,
	service string,
	topK int,
) *AnalyzeImageUseCase {
	if topK <= 0 {
		topK = 5
	}
	return &AnalyzeImageUseCase{
		fetcher:    fetcher,
		scorer:     scorer,
		classifier: classifier,
		recipe:     recipe,
		pool:       pool,
		exec:       exec,
		metrics:    m,
		service:    service,
		topK:       topK,
	}
}

// Analyze produces the unified record for one image URL. Backend failures
// degrade to omitted fields; fetch, decode and input validation failures
// are returned for the server to map onto the fail-open empty body.
func (uc *AnalyzeImageUseCase) Analyze(ctx context.Context, rawURL string) (*domain.Analysis, error) {
	dom, err := domain.SourceDomain(rawURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate image url", err)
	}

	data, err := uc.fetchStage(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var analysis *domain.Analysis
	err = uc.pool.Do(ctx, func() error {
		md, tensor, decodeErr := uc.decodeStage(data)
		if decodeErr != nil {
			return decodeErr
		}

		score := uc.scoreStage(ctx, dom, tensor)
		classification := uc.classifyStage(ctx, dom, data)

		analysis = &domain.Analysis{
			Metadata:       *md,
			NSFWScore:      score,
			Classification: TopK(classification, uc.topK),
			MIME:           mimetype.Detect(data).String(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (uc *AnalyzeImageUseCase) fetchStage(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	data, err := uc.fetcher.Fetch(ctx, rawURL)
	uc.observeStage("fetch", start)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// decodeStage decodes the bytes and builds the scorer tensor. A preprocess
// failure only disables the sensitivity path; decode failure fails the
// whole request.
func (uc *AnalyzeImageUseCase) decodeStage(data []byte) (*domain.Metadata, *domain.Tensor, error) {
	start := time.Now()
	img, md, err := imaging.Decode(data)
	uc.observeStage("decode", start)
	if err != nil {
		return nil, nil, err
	}

	start = time.Now()
	tensor, err := imaging.PreprocessSensitivity(img, uc.recipe)
	uc.observeStage("preprocess", start)
	if err != nil {
		slog.Warn("sensitivity_preprocess_failed", "error", err)
		tensor = nil
	}
	return md, tensor, nil
}

// scoreStage returns nil when the scorer has no usable input or errors;
// the assembler then omits the field.
func (uc *AnalyzeImageUseCase) scoreStage(ctx context.Context, dom string, tensor *domain.Tensor) *float64 {
	if tensor == nil {
		return nil
	}

	start := time.Now()
	defer uc.observeStage("score", start)

	var score float64
	err := uc.exec.Execute(ctx, "score_sensitivity", func(ctx context.Context) error {
		var scoreErr error
		score, scoreErr = uc.scorer.Score(ctx, tensor)
		return scoreErr
	}, backendClassifier)
	if err != nil {
		uc.recordBackendFailure("scorer")
		slog.Warn("sensitivity_score_unavailable", "domain", dom, "error", err)
		return nil
	}
	return &score
}

// classifyStage returns an empty map on failure; the assembler then omits
// the classification field.
func (uc *AnalyzeImageUseCase) classifyStage(ctx context.Context, dom string, data []byte) map[string]float64 {
	start := time.Now()
	defer uc.observeStage("classify", start)

	var scores map[string]float64
	err := uc.exec.Execute(ctx, "classify", func(ctx context.Context) error {
		var classifyErr error
		scores, classifyErr = uc.classifier.Classify(ctx, data)
		return classifyErr
	}, backendClassifier)
	if err != nil {
		uc.recordBackendFailure("classifier")
		slog.Warn("classification_unavailable", "domain", dom, "error", err)
		return nil
	}
	return scores
}

func (uc *AnalyzeImageUseCase) observeStage(stage string, start time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.ObserveStage(uc.service, stage, time.Since(start))
}

func (uc *AnalyzeImageUseCase) recordBackendFailure(backend string) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordBackendFailure(uc.service, backend)
}

// backendClassifier retries transient backend unavailability and counts it
// against the circuit breaker; contract violations are not retried.
func backendClassifier(err error) resilience.ErrorClassification {
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}
