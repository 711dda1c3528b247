// Package httpapi exposes the RAG service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/service"
)

// RAG is the subset of the service the handlers call.
type RAG interface {
	IngestDocument(ctx context.Context, filename, content string) (int, error)
	Answer(ctx context.Context, messages []domain.Message) (service.AnswerResult, error)
	Retrieve(ctx context.Context, query string, topK int) ([]domain.Source, error)
	ListDocuments(ctx context.Context) ([]domain.ChunkRecord, error)
	Cleanup(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type Options struct {
	AllowedOrigins []string
	// CronSecret, when set, must be sent as a bearer token to /api/cleanup.
	CronSecret     string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

type Handler struct {
	rag    RAG
	opts   Options
	logger *zap.Logger
}

// NewRouter configures all routes and middleware.
func NewRouter(rag RAG, opts Options, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &Handler{rag: rag, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.upload)
		r.Post("/chat", h.chat)
		r.Post("/search", h.search)
		r.Post("/cleanup", h.cleanup)
		r.Get("/cleanup", h.cleanup)
		r.Delete("/clear", h.clear)
		r.Get("/documents", h.documents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "endpoint not found")
	})
	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
