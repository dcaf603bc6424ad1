package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dchistyakov/image-insight/internal/core/domain"
	"github.com/dchistyakov/image-insight/internal/core/usecase"
	"github.com/dchistyakov/image-insight/internal/observability/metrics"
)

const serviceName = "image-insight"

var errEmptyImageParam = errors.New("image query parameter is required")

// TrafficConfig tunes the optional admission-control middleware. Zero
// values disable the corresponding gate.
type TrafficConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	OverloadWait   time.Duration
}

type Router struct {
	analyzeUC *usecase.AnalyzeImageUseCase
	metrics   *metrics.ServiceMetrics
	traffic   TrafficConfig
}

func NewRouter(analyzeUC *usecase.AnalyzeImageUseCase, m *metrics.ServiceMetrics, traffic TrafficConfig) *Router {
	return &Router{
		analyzeUC: analyzeUC,
		metrics:   m,
		traffic:   traffic,
	}
}

func (rt *Router) Handler() http.Handler {
	analyze := http.Handler(http.HandlerFunc(rt.analyzeImage))
	analyze = rateLimitMiddleware(analyze, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
	analyze = backpressureMiddleware(analyze, rt.traffic.MaxInFlight, rt.traffic.OverloadWait)

	mux := http.NewServeMux()
	mux.Handle("/", analyze)
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeImage serves the single analysis endpoint. Any pipeline failure
// short of a backend outage collapses to an empty JSON object with status
// 200; callers distinguish "no result" by the absent fields, never by the
// status code.
func (rt *Router) analyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	imageURL := strings.TrimSpace(r.URL.Query().Get("image"))
	if imageURL == "" {
		rt.failOpen(w, r, domain.WrapError(domain.ErrInvalidInput, "read request", errEmptyImageParam))
		return
	}

	analysis, err := rt.analyzeUC.Analyze(r.Context(), imageURL)
	if err != nil {
		rt.failOpen(w, r, err)
		return
	}

	body, err := json.Marshal(analysis)
	if err != nil {
		rt.failOpen(w, r, domain.WrapError(domain.ErrSerialization, "encode analysis", err))
		return
	}

	rt.recordAnalysis("ok")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// failOpen writes the empty-object body. The analyzer never answers with
// an error status for a bad image: an unfetchable, undecodable or
// unserializable input yields {} so a caller can treat every response
// uniformly.
func (rt *Router) failOpen(w http.ResponseWriter, r *http.Request, err error) {
	slog.Warn("analysis_failed",
		"request_id", requestIDFromContext(r.Context()),
		"image", r.URL.Query().Get("image"),
		"error", err,
	)
	rt.recordAnalysis(failureStatus(err))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

func (rt *Router) recordAnalysis(status string) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordAnalysis(serviceName, status)
}

func failureStatus(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrFetch):
		return "fetch_failed"
	case domain.IsKind(err, domain.ErrDecode):
		return "decode_failed"
	case domain.IsKind(err, domain.ErrSerialization):
		return "serialization_failed"
	default:
		return "failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
