package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dchistyakov/image-insight/internal/core/domain"
	"github.com/dchistyakov/image-insight/internal/core/usecase"
	"github.com/dchistyakov/image-insight/internal/infrastructure/imaging"
	"github.com/dchistyakov/image-insight/internal/infrastructure/resilience"
	"github.com/dchistyakov/image-insight/internal/infrastructure/workerpool"
)

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.data, f.err
}

type fakeScorer struct {
	score float64
	err   error
}

func (f *fakeScorer) Score(ctx context.Context, tensor *domain.Tensor) (float64, error) {
	return f.score, f.err
}

type fakeClassifier struct {
	scores map[string]float64
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, imageBytes []byte) (map[string]float64, error) {
	return f.scores, f.err
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 12, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, color.RGBA{R: 90, G: 140, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestHandler(fetcher *fakeFetcher, scorer *fakeScorer, classifier *fakeClassifier, traffic TrafficConfig) http.Handler {
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	})
	uc := usecase.NewAnalyzeImageUseCase(
		fetcher, scorer, classifier,
		imaging.DefaultSensitivityRecipe(),
		workerpool.New(2), exec, nil, serviceName, 5,
	)
	return NewRouter(uc, nil, traffic).Handler()
}

func TestAnalyzeReturnsMergedRecord(t *testing.T) {
	handler := newTestHandler(
		&fakeFetcher{data: testImage(t)},
		&fakeScorer{score: 0.07},
		&fakeClassifier{scores: map[string]float64{"lawn": 0.8}},
		TrafficConfig{},
	)

	req := httptest.NewRequest(http.MethodGet, "/?image=https://example.com/yard.png", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["width"] != float64(12) || body["height"] != float64(9) {
		t.Fatalf("unexpected dimensions in %v", body)
	}
	if body["nsfw_score"] != 0.07 {
		t.Fatalf("nsfw_score = %v", body["nsfw_score"])
	}
	classification, ok := body["classification"].(map[string]any)
	if !ok || classification["lawn"] != 0.8 {
		t.Fatalf("classification = %v", body["classification"])
	}
	if body["mime"] != "image/png" {
		t.Fatalf("mime = %v", body["mime"])
	}
}

func TestAnalyzeFailsOpenOnFetchError(t *testing.T) {
	fetchErr := domain.WrapError(domain.ErrFetch, "fetch image", errors.New("no route to host"))
	handler := newTestHandler(&fakeFetcher{err: fetchErr}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/?image=https://example.com/gone.jpg", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for fail-open response, got %d", res.Code)
	}
	if got := res.Body.String(); got != "{}" {
		t.Fatalf("expected empty object body, got %q", got)
	}
}

func TestAnalyzeFailsOpenOnUndecodableImage(t *testing.T) {
	handler := newTestHandler(&fakeFetcher{data: []byte("<html>not an image</html>")}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/?image=https://example.com/page.html", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || res.Body.String() != "{}" {
		t.Fatalf("expected fail-open {}, got %d %q", res.Code, res.Body.String())
	}
}

func TestAnalyzeFailsOpenOnMissingImageParam(t *testing.T) {
	handler := newTestHandler(&fakeFetcher{}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || res.Body.String() != "{}" {
		t.Fatalf("expected fail-open {}, got %d %q", res.Code, res.Body.String())
	}
}

func TestAnalyzeFailsOpenOnUnserializableScore(t *testing.T) {
	handler := newTestHandler(
		&fakeFetcher{data: testImage(t)},
		&fakeScorer{score: math.NaN()},
		&fakeClassifier{scores: map[string]float64{"lawn": 0.8}},
		TrafficConfig{},
	)

	req := httptest.NewRequest(http.MethodGet, "/?image=https://example.com/yard.png", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK || res.Body.String() != "{}" {
		t.Fatalf("expected fail-open {}, got %d %q", res.Code, res.Body.String())
	}
}

func TestAnalyzeRejectsNonGET(t *testing.T) {
	handler := newTestHandler(&fakeFetcher{}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/?image=https://example.com/a.png", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(&fakeFetcher{}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestRequestIDHeaderIsReflected(t *testing.T) {
	handler := newTestHandler(&fakeFetcher{}, &fakeScorer{}, &fakeClassifier{}, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("request id = %q, want req-123", got)
	}

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id header")
	}
}
