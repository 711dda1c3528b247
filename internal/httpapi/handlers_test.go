package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragsearch/internal/chunker"
	"ragsearch/internal/domain"
	"ragsearch/internal/embedding"
	"ragsearch/internal/service"
	"ragsearch/internal/store/memory"
)

type staticGenerator struct{}

func (staticGenerator) Name() string { return "static" }

func (staticGenerator) Complete(_ context.Context, p domain.Prompt) (string, error) {
	return "answer with " + string(rune('0'+len(p.Sources))) + " sources", nil
}

type downStore struct{ *memory.Storage }

func (downStore) FetchAll(context.Context) ([]domain.ChunkRecord, error) {
	return nil, errors.New("connection refused")
}

func newTestRouter(t *testing.T, store domain.DocumentStore, opts Options) (http.Handler, *service.RAGService) {
	t.Helper()
	ch, err := chunker.NewWindowChunker(100, 10)
	require.NoError(t, err)
	if store == nil {
		store = memory.NewStorage()
	}
	svc := service.NewRAGService(ch, embedding.New(nil, embedding.Options{}, nil), store, staticGenerator{}, service.Options{}, nil)
	return NewRouter(svc, opts, nil), svc
}

func multipartUpload(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		status   int
		message  string
	}{
		{"text file", "notes.txt", "hello from the knowledge base", http.StatusOK, "Successfully processed notes.txt"},
		{"markdown", "doc.md", "# heading", http.StatusOK, "Successfully processed doc.md"},
		{"unsupported", "image.png", "xxx", http.StatusBadRequest, "Unsupported file type. Please upload TXT, MD, or PDF files."},
		{"empty", "blank.txt", "   ", http.StatusBadRequest, "File is empty or could not be read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, nil, Options{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartUpload(t, tt.filename, tt.content))
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.message, body["message"])
			if tt.status == http.StatusOK {
				assert.Equal(t, true, body["success"])
				assert.EqualValues(t, 1, body["chunks"])
			}
		})
	}
}

func TestUpload_MissingFile(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", decode(t, rec)["message"])
}

func TestChat(t *testing.T) {
	router, svc := newTestRouter(t, nil, Options{})
	_, err := svc.IngestDocument(context.Background(), "go.md", "Go is a programming language.")
	require.NoError(t, err)

	body := `{"messages":[{"role":"user","content":"What is Go?"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.AnswerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "answer with 1 sources", res.Answer)
	assert.Equal(t, "static", res.Provider)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "go.md", res.Sources[0].Metadata.Filename)
}

func TestChat_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	for _, body := range []string{`{`, `{"messages":[]}`, `{"messages":[{"role":"assistant","content":"hi"}]}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestChat_StoreDownStillAnswers(t *testing.T) {
	router, _ := newTestRouter(t, downStore{memory.NewStorage()}, Options{})
	body := `{"messages":[{"role":"user","content":"anything"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.AnswerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Sources)
}

func TestSearch(t *testing.T) {
	router, svc := newTestRouter(t, nil, Options{})
	for _, text := range []string{"apple banana", "apple banana", "car truck engine"} {
		_, err := svc.IngestDocument(context.Background(), "f.txt", text)
		require.NoError(t, err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"apple banana","top_k":2}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Sources []domain.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "apple banana", res.Sources[0].Content)
	assert.Equal(t, "apple banana", res.Sources[1].Content)
}

func TestSearch_Errors(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":" "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	router, _ = newTestRouter(t, downStore{memory.NewStorage()}, Options{})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"x"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearch_EmptyStoreReturnsEmptyList(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"x"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sources":[]}`, rec.Body.String())
}

func TestCleanup(t *testing.T) {
	store := memory.NewStorage()
	require.NoError(t, store.Insert(context.Background(), []domain.ChunkRecord{
		{Content: "stale", Metadata: domain.Metadata{CreatedAt: time.Now().Add(-time.Hour)}},
		{Content: "fresh", Metadata: domain.Metadata{CreatedAt: time.Now()}},
	}))
	router, _ := newTestRouter(t, store, Options{CronSecret: "s3cret"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cleanup", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["deletedCount"])
	assert.Equal(t, "Cleanup completed. Deleted 1 old documents.", body["message"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestClearAndDocuments(t *testing.T) {
	router, svc := newTestRouter(t, nil, Options{})
	_, err := svc.IngestDocument(context.Background(), "a.txt", "some text")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])
	docs := body["documents"].([]any)
	assert.NotContains(t, docs[0].(map[string]any), "embedding")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.JSONEq(t, `{"documents":[],"count":0}`, rec.Body.String())
}

func TestNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil, Options{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "endpoint not found", decode(t, rec)["message"])
}
