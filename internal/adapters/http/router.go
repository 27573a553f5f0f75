package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const backpressureWait = 250 * time.Millisecond

// BatchEvaluator re-runs a set of documents through the rule engine.
type BatchEvaluator interface {
	EvaluateMany(ctx context.Context, docs []*domain.Document) ([]domain.RuleEvaluation, error)
}

// EvaluationSource lists the owner documents eligible for re-evaluation.
type EvaluationSource interface {
	LoadForEvaluation(ctx context.Context, ownerID string) ([]*domain.Document, error)
}

// Metrics is the slice of the HTTP metrics registry the router uses.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordUpload(size int64)
	RecordRejected(service, reason string)
}

type Dependencies struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Rules     ports.RuleService
	Batch     BatchEvaluator
	Source    EvaluationSource
	Search    ports.SearchService
	Metrics   Metrics
	Logger    *slog.Logger
	// Contract is the OpenAPI document requests are validated against.
	// Nil disables validation.
	Contract []byte
}

type Router struct {
	cfg       config.Config
	deps      Dependencies
	validator *requestValidator
}

func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &Router{cfg: cfg, deps: deps}
	if len(deps.Contract) > 0 {
		validator, err := newRequestValidator(context.Background(), deps.Contract)
		if err != nil {
			return nil, err
		}
		rt.validator = validator
	}
	return rt, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	if rt.validator != nil {
		mux.HandleFunc("GET /openapi.yaml", rt.contract)
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/stats", rt.documentStats)
	mux.HandleFunc("POST /v1/documents/evaluate", rt.evaluateAll)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)
	mux.HandleFunc("POST /v1/documents/{id}/evaluate", rt.evaluateDocument)

	mux.HandleFunc("GET /v1/rules", rt.listRules)
	mux.HandleFunc("POST /v1/rules", rt.createRule)
	mux.HandleFunc("GET /v1/rules/{id}", rt.getRule)
	mux.HandleFunc("PUT /v1/rules/{id}", rt.updateRule)
	mux.HandleFunc("DELETE /v1/rules/{id}", rt.deleteRule)
	mux.HandleFunc("POST /v1/rules/{id}/toggle", rt.toggleRule)

	mux.HandleFunc("GET /v1/search", rt.search)
	mux.HandleFunc("GET /v1/search/suggest", rt.suggest)
	mux.HandleFunc("GET /v1/search/filters", rt.filterOptions)

	var onReject rejectionRecorder
	var handler http.Handler = mux
	if rt.validator != nil {
		handler = rt.validator.middleware(handler)
	}
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
		onReject = func(reason string) { rt.deps.Metrics.RecordRejected("api", reason) }
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	handler = accessLogMiddleware(rt.deps.Logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) contract(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(rt.deps.Contract)
}

// ownerID resolves the caller. Authentication happens upstream; the gateway
// forwards the verified user id.
func ownerID(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(ownerHeader))
	if owner == "" {
		return "", errMissingOwner
	}
	return owner, nil
}

type pageResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
