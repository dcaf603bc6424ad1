package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dchistyakov/image-insight/internal/config"
	"github.com/dchistyakov/image-insight/internal/core/usecase"
	"github.com/dchistyakov/image-insight/internal/infrastructure/artifacts"
	"github.com/dchistyakov/image-insight/internal/infrastructure/backend/onnx"
	"github.com/dchistyakov/image-insight/internal/infrastructure/backend/tensorflow"
	"github.com/dchistyakov/image-insight/internal/infrastructure/fetch"
	"github.com/dchistyakov/image-insight/internal/infrastructure/imaging"
	"github.com/dchistyakov/image-insight/internal/infrastructure/resilience"
	"github.com/dchistyakov/image-insight/internal/infrastructure/workerpool"
	"github.com/dchistyakov/image-insight/internal/observability/metrics"
)

const serviceName = "image-insight"

// App owns every long-lived component. Construction is all-or-nothing: if
// any model artifact cannot be fetched or loaded, the process must not
// serve traffic, so New fails instead of degrading.
type App struct {
	Config    config.Config
	Metrics   *metrics.ServiceMetrics
	AnalyzeUC *usecase.AnalyzeImageUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	manager := artifacts.NewManager(cfg.ModelDir, nil)
	err := manager.Ensure(ctx, []artifacts.Descriptor{
		{
			Name:   "sensitivity-model",
			URL:    cfg.ScorerArchiveURL,
			Marker: cfg.ScorerModelFile,
		},
		{
			Name:   "classifier-model",
			URL:    cfg.ClassifierArchiveURL,
			Marker: cfg.ClassifierGraph,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ensure model artifacts: %w", err)
	}

	recipe, err := imaging.LoadRecipe(filepath.Join(cfg.ModelDir, cfg.ScorerRecipeFile))
	if err != nil {
		return nil, fmt.Errorf("load preprocessing recipe: %w", err)
	}

	scorer, err := onnx.NewScorer(filepath.Join(cfg.ModelDir, cfg.ScorerModelFile), recipe)
	if err != nil {
		return nil, fmt.Errorf("init sensitivity scorer: %w", err)
	}

	labels, err := tensorflow.LoadLabelMap(
		filepath.Join(cfg.ModelDir, cfg.ClassifierLabelMap),
		filepath.Join(cfg.ModelDir, cfg.ClassifierUIDMap),
	)
	if err != nil {
		scorer.Close()
		return nil, fmt.Errorf("load classifier labels: %w", err)
	}

	classifier, err := tensorflow.NewClassifier(filepath.Join(cfg.ModelDir, cfg.ClassifierGraph), labels)
	if err != nil {
		scorer.Close()
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	fetcher := fetch.New(time.Duration(cfg.FetchTimeoutSeconds)*time.Second, cfg.FetchMaxBytes)
	pool := workerpool.New(cfg.WorkerPoolSize)

	execCfg := resilience.DefaultConfig()
	execCfg.RetryMaxAttempts = cfg.BackendRetryAttempts
	exec := resilience.NewExecutor(execCfg)

	serviceMetrics := metrics.NewServiceMetrics(serviceName)

	analyzeUC := usecase.NewAnalyzeImageUseCase(
		fetcher, scorer, classifier,
		recipe, pool, exec, serviceMetrics,
		serviceName, cfg.TopK,
	)

	return &App{
		Config:    cfg,
		Metrics:   serviceMetrics,
		AnalyzeUC: analyzeUC,

		closeFn: func() {
			_ = classifier.Close()
			scorer.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
