// Package gemini calls the Generative Language embedContent endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"ragsearch/internal/embedding"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config configures the Gemini embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	HTTPClient *http.Client
}

// Client implements embedding.Client for text-embedding-004.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient reads the API key from the configured env var.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GOOGLE_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  key,
		model:   strings.TrimPrefix(cfg.Model, "models/"),
		client:  hc,
	}, nil
}

func (c *Client) Name() string { return "gemini" }

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding *struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// EmbedContent embeds a single text. Quota exhaustion comes back as a
// StatusError with code 429 and status RESOURCE_EXHAUSTED in the message.
func (c *Client) EmbedContent(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{
		Model:   "models/" + c.model,
		Content: content{Parts: []part{{Text: text}}},
	})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 300 {
		se := &embedding.StatusError{Provider: c.Name(), Code: resp.StatusCode, Status: resp.Status}
		var er errorResponse
		if json.Unmarshal(payload, &er) == nil && er.Error.Message != "" {
			se.Message = er.Error.Status + ": " + er.Error.Message
		}
		return nil, se
	}

	var out embedResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrMalformedResponse, err)
	}
	if out.Embedding == nil || len(out.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: invalid embedding response from gemini", embedding.ErrMalformedResponse)
	}
	return out.Embedding.Values, nil
}
