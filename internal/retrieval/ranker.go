// Package retrieval ranks stored chunks against a query by cosine similarity.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/similarity"
)

// DefaultTopK is used when a caller passes topK <= 0.
const DefaultTopK = 3

var (
	// ErrStoreUnavailable wraps any FetchAll failure so callers can tell an
	// unreachable store apart from an empty one.
	ErrStoreUnavailable = errors.New("retrieval: document store unavailable")
	ErrEmbedQuery       = errors.New("retrieval: query embedding failed")
)

type Ranker struct {
	embedder domain.Embedder
	store    domain.DocumentStore
	logger   *zap.Logger
}

func NewRanker(embedder domain.Embedder, store domain.DocumentStore, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{embedder: embedder, store: store, logger: logger}
}

// Retrieve embeds the query, scans every stored chunk and returns at most
// topK sources by descending similarity. An empty store yields an empty
// slice and no error.
func (r *Ranker) Retrieve(ctx context.Context, query string, topK int) ([]domain.Source, error) {
	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedQuery, err)
	}
	candidates, err := r.store.FetchAll(ctx)
	if err != nil {
		r.logger.Error("fetch candidates failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	sources, dropped := Rank(qv, candidates, topK)
	for _, d := range dropped {
		r.logger.Warn("candidate excluded from ranking",
			zap.String("id", d.ID),
			zap.Int("dimension", d.Dimension),
			zap.String("reason", d.Reason),
		)
	}
	r.logger.Debug("retrieved",
		zap.Int("candidates", len(candidates)),
		zap.Int("dropped", len(dropped)),
		zap.Int("returned", len(sources)),
	)
	return sources, nil
}

// Dropped describes a candidate that could not be ranked.
type Dropped struct {
	ID        string
	Dimension int
	Reason    string
}

// Rank scores candidates against query. Candidates missing an embedding, of
// the wrong length, or scoring a non-finite value are left out. Ties keep
// the order candidates were given in.
func Rank(query []float64, candidates []domain.ChunkRecord, topK int) ([]domain.Source, []Dropped) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	type scored struct {
		rec   *domain.ChunkRecord
		score float64
	}
	var (
		valid   = make([]scored, 0, len(candidates))
		dropped []Dropped
	)
	for i := range candidates {
		c := &candidates[i]
		if len(c.Embedding) == 0 {
			dropped = append(dropped, Dropped{ID: c.ID, Reason: "missing embedding"})
			continue
		}
		score, err := similarity.Cosine(query, c.Embedding)
		if err != nil {
			dropped = append(dropped, Dropped{ID: c.ID, Dimension: len(c.Embedding), Reason: "dimension mismatch"})
			continue
		}
		if !similarity.Finite(score) {
			dropped = append(dropped, Dropped{ID: c.ID, Dimension: len(c.Embedding), Reason: "non-finite score"})
			continue
		}
		valid = append(valid, scored{rec: c, score: score})
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].score > valid[j].score })
	if len(valid) > topK {
		valid = valid[:topK]
	}
	out := make([]domain.Source, len(valid))
	for i, v := range valid {
		out[i] = domain.Source{
			ID:         v.rec.ID,
			Content:    v.rec.Content,
			Metadata:   v.rec.Metadata,
			Similarity: v.score,
		}
	}
	return out, dropped
}
