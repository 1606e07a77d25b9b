package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	maxBodyBytes    = 10 << 20
	maxSummaryLen   = 256
	requestIDHeader = "X-Embedding-Request-ID"
)

//go:embed openapi.json
var openAPIDoc []byte

// Embedder turns texts into unit-normalized embeddings, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Options tune a Handler. A nil Registry disables /metrics and request metrics.
type Options struct {
	RequestTimeout time.Duration
	Registry       *prometheus.Registry
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	embedder       Embedder
	logger         *zap.Logger
	requestTimeout time.Duration
	registry       *prometheus.Registry
	metrics        *httpMetrics
}

// NewHandler creates a new API handler.
func NewHandler(embedder Embedder, logger *zap.Logger, opts Options) *Handler {
	h := &Handler{
		embedder:       embedder,
		logger:         logger,
		requestTimeout: opts.RequestTimeout,
		registry:       opts.Registry,
	}
	if opts.Registry != nil {
		h.metrics = newHTTPMetrics(opts.Registry)
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{requestIDHeader},
	}))
	if h.metrics != nil {
		r.Use(h.metrics.middleware)
	}

	r.Get("/", h.home)
	r.Get("/openapi", h.openAPI)
	r.Get("/health", h.healthCheck)
	r.Post("/embedding", h.createEmbeddings)
	if h.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	return r
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/openapi", http.StatusFound)
}

func (h *Handler) openAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(openAPIDoc)
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type descriptionItem struct {
	Description *string `json:"description"`
}

type embeddingRequest struct {
	Descriptions *[]descriptionItem `json:"descriptions"`
}

type embeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (h *Handler) createEmbeddings(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set(requestIDHeader, reqID)

	texts, err := decodeDescriptions(w, r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	embeddings, err := h.embedder.Embed(ctx, texts)
	if err != nil {
		msg := fmt.Sprintf("Error creating embedding for transaction '%s': %v", summarize(texts), err)
		h.logger.Warn("embedding request failed",
			zap.String("request_id", reqID),
			zap.Strings("descriptions", texts),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg})
		return
	}

	h.logger.Info("embeddings created",
		zap.String("request_id", reqID),
		zap.Int("descriptions", len(texts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, embeddingResponse{Embeddings: embeddings})
}

// decodeDescriptions validates the request body and extracts the texts in order.
func decodeDescriptions(w http.ResponseWriter, r *http.Request) ([]string, error) {
	var req embeddingRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Descriptions == nil {
		return nil, errors.New("descriptions: field required")
	}

	items := *req.Descriptions
	texts := make([]string, len(items))
	for i, item := range items {
		if item.Description == nil {
			return nil, fmt.Errorf("descriptions[%d].description: field required", i)
		}
		if strings.TrimSpace(*item.Description) == "" {
			return nil, fmt.Errorf("descriptions[%d].description: must not be empty", i)
		}
		texts[i] = *item.Description
	}
	return texts, nil
}

// summarize renders the offending descriptions for error messages, truncated.
func summarize(texts []string) string {
	s := strings.Join(texts, "; ")
	if r := []rune(s); len(r) > maxSummaryLen {
		return string(r[:maxSummaryLen]) + "..."
	}
	return s
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("chi_request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
