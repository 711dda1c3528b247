package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragsearch/internal/embedding"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	t.Setenv("TEST_GOOGLE_KEY", "g-key")
	c, err := NewClient(Config{BaseURL: url, APIKeyEnv: "TEST_GOOGLE_KEY"})
	require.NoError(t, err)
	return c
}

func TestEmbedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/text-embedding-004:embedContent", r.URL.Path)
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "models/text-embedding-004", req.Model)
		require.Len(t, req.Content.Parts, 1)
		assert.Equal(t, "some text", req.Content.Parts[0].Text)
		_, _ = w.Write([]byte(`{"embedding":{"values":[0.25,0.5,0.75]}}`))
	}))
	defer srv.Close()

	vec, err := newTestClient(t, srv.URL).EmbedContent(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, vec)
}

func TestEmbedContent_Quota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).EmbedContent(context.Background(), "x")
	var se *embedding.StatusError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "RESOURCE_EXHAUSTED")
	assert.Equal(t, embedding.ClassQuota, embedding.Classify(err))
}

func TestEmbedContent_MissingValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).EmbedContent(context.Background(), "x")
	assert.ErrorIs(t, err, embedding.ErrMalformedResponse)
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("TEST_GOOGLE_MISSING", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_GOOGLE_MISSING"})
	assert.Error(t, err)
}
