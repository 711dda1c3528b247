// Package qdrant stores chunk records in a Qdrant collection over its REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/store/codec"
)

const scrollPageSize = 256

// Storage is a minimal REST client to Qdrant. Qdrant keeps float32 vectors,
// so the exact float64 embedding rides along in the payload and is what
// FetchAll returns.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     *zap.Logger
	seq        atomic.Int64
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewStorage(cfg Config, logger *zap.Logger) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = domain.Dimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
	// microseconds keep seq below 2^53 so JSON readers that decode numbers
	// as float64 still see distinct values
	s.seq.Store(time.Now().UnixMicro())
	return s
}

// Init creates the collection unless it already exists.
func (s *Storage) Init(ctx context.Context) error {
	if s.dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.logger.Info("qdrant collection created", zap.String("collection", s.collection), zap.Int("dimension", s.dimension))
	return nil
}

type payload struct {
	Content     string `json:"content"`
	Embedding   []byte `json:"embedding,omitempty"`
	Filename    string `json:"filename"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	CreatedAt   string `json:"created_at"`
	Seq         int64  `json:"seq"`
}

type point struct {
	ID      string    `json:"id"`
	Vector  []float64 `json:"vector,omitempty"`
	Payload payload   `json:"payload"`
}

// Insert upserts the batch in a single request.
func (s *Storage) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]point, len(records))
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		vec := r.Embedding
		if len(vec) != s.dimension {
			// the collection rejects off-size vectors; the payload keeps the original
			vec = make([]float64, s.dimension)
		}
		points[i] = point{
			ID:     id,
			Vector: vec,
			Payload: payload{
				Content:     r.Content,
				Embedding:   codec.EncodeVector(r.Embedding),
				Filename:    r.Metadata.Filename,
				ChunkIndex:  r.Metadata.ChunkIndex,
				TotalChunks: r.Metadata.TotalChunks,
				CreatedAt:   r.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano),
				Seq:         s.seq.Add(1),
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil)
	return err
}

// FetchAll scrolls the whole collection and returns records in insertion order.
func (s *Storage) FetchAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	type scrolled struct {
		ID      any     `json:"id"`
		Payload payload `json:"payload"`
	}
	var all []scrolled
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []scrolled `json:"points"`
				NextPageOffset any        `json:"next_page_offset"`
			} `json:"result"`
		}
		if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Payload.Seq < all[j].Payload.Seq })

	out := make([]domain.ChunkRecord, 0, len(all))
	for _, p := range all {
		vec, err := codec.DecodeVector(p.Payload.Embedding)
		id := fmt.Sprint(p.ID)
		if err != nil {
			s.logger.Warn("undecodable embedding", zap.String("id", id), zap.Error(err))
		}
		created, err := time.Parse(time.RFC3339Nano, p.Payload.CreatedAt)
		if err != nil {
			s.logger.Warn("bad created_at", zap.String("id", id), zap.Error(err))
		}
		out = append(out, domain.ChunkRecord{
			ID:        id,
			Content:   p.Payload.Content,
			Embedding: vec,
			Metadata: domain.Metadata{
				Filename:    p.Payload.Filename,
				ChunkIndex:  p.Payload.ChunkIndex,
				TotalChunks: p.Payload.TotalChunks,
				CreatedAt:   created,
			},
		})
	}
	return out, nil
}

// DeleteOlderThan counts then deletes points whose created_at is before ts.
// Qdrant's filtered delete reports no count, so the result is the count taken
// just before the delete; a concurrent sweep over the same range can make it
// overstate what this call removed.
func (s *Storage) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	filter := map[string]any{
		"must": []any{
			map[string]any{
				"key":   "created_at",
				"range": map[string]any{"lt": ts.UTC().Format(time.RFC3339Nano)},
			},
		},
	}
	var count struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"filter": filter, "exact": true}, &count); err != nil {
		return 0, err
	}
	if count.Result.Count == 0 {
		return 0, nil
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/delete?wait=true", map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return count.Result.Count, nil
}

// DeleteAll drops the collection and creates it again.
func (s *Storage) DeleteAll(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	return s.Init(ctx)
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends a JSON request and decodes the response into out when given.
// The status code is returned even on failure so callers can branch on 404.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decode response: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}
