package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/extract"
	"ragsearch/internal/retrieval"
	"ragsearch/internal/service"
)

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, statusResponse{Success: false, Message: message})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	text, err := extract.Bytes(header.Filename, data)
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		respondError(w, http.StatusBadRequest, "Unsupported file type. Please upload TXT, MD, or PDF files.")
		return
	case errors.Is(err, extract.ErrEmptyContent):
		respondError(w, http.StatusBadRequest, "File is empty or could not be read")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse file: %v", err))
		return
	}

	n, err := h.rag.IngestDocument(r.Context(), header.Filename, text)
	if err != nil {
		h.logger.Error("upload ingest failed", zap.String("filename", header.Filename), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to store document")
		return
	}
	respondJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Message: "Successfully processed " + header.Filename,
		Chunks:  n,
	})
}

type chatRequest struct {
	Messages []domain.Message `json:"messages"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "No messages provided")
		return
	}
	res, err := h.rag.Answer(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, service.ErrNoQuestion) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("chat failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Sorry, I encountered an error. Please try again later.")
		return
	}
	if res.Sources == nil {
		res.Sources = []domain.Source{}
	}
	respondJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	sources, err := h.rag.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, retrieval.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("search failed", zap.Error(err))
		respondError(w, status, "search failed")
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

type cleanupResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount int    `json:"deletedCount"`
	Timestamp    string `json:"timestamp"`
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	if h.opts.CronSecret != "" {
		want := "Bearer " + h.opts.CronSecret
		if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) != 1 {
			respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return
		}
	}
	n, err := h.rag.Cleanup(r.Context())
	if err != nil {
		h.logger.Error("cleanup failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, statusResponse{Message: "Cleanup failed", Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, cleanupResponse{
		Success:      true,
		Message:      fmt.Sprintf("Cleanup completed. Deleted %d old documents.", n),
		DeletedCount: n,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.rag.Clear(r.Context()); err != nil {
		h.logger.Error("clear failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, statusResponse{Message: "Failed to clear database", Error: err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Message: "Database cleared successfully! All documents have been removed.",
	})
}

func (h *Handler) documents(w http.ResponseWriter, r *http.Request) {
	docs, err := h.rag.ListDocuments(r.Context())
	if err != nil {
		h.logger.Error("list documents failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []domain.ChunkRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs, "count": len(docs)})
}
