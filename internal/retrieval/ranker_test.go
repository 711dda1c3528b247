package retrieval

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragsearch/internal/domain"
	"ragsearch/internal/embedding"
	"ragsearch/internal/store/memory"
)

func fallbackRecord(content string) domain.ChunkRecord {
	return domain.ChunkRecord{
		Content:   content,
		Embedding: embedding.Fallback(content, domain.Dimension),
		Metadata:  domain.Metadata{Filename: "test.txt", CreatedAt: time.Now()},
	}
}

func newTestRanker(t *testing.T, records ...domain.ChunkRecord) *Ranker {
	t.Helper()
	store := memory.NewStorage()
	require.NoError(t, store.Insert(context.Background(), records))
	return NewRanker(embedding.New(nil, embedding.Options{}, nil), store, nil)
}

func TestRetrieve_IdenticalTextsRankFirst(t *testing.T) {
	r := newTestRanker(t,
		fallbackRecord("apple banana"),
		fallbackRecord("apple banana"),
		fallbackRecord("car truck engine"),
	)
	got, err := r.Retrieve(context.Background(), "apple banana", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, "apple banana", s.Content)
		assert.InDelta(t, 1.0, s.Similarity, 1e-12)
	}
}

func TestRetrieve_EmptyStore(t *testing.T) {
	r := newTestRanker(t)
	got, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieve_DropsWrongDimension(t *testing.T) {
	short := make([]float64, 500)
	for i := range short {
		short[i] = 1
	}
	r := newTestRanker(t,
		domain.ChunkRecord{ID: "short", Content: "short", Embedding: short},
		domain.ChunkRecord{ID: "full", Content: "full", Embedding: embedding.Fallback("full", domain.Dimension)},
	)
	got, err := r.Retrieve(context.Background(), "full", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "full", got[0].Content)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	var recs []domain.ChunkRecord
	for _, s := range []string{"one two", "two three", "three four", "four five", "five six"} {
		recs = append(recs, fallbackRecord(s))
	}
	r := newTestRanker(t, recs...)
	got, err := r.Retrieve(context.Background(), "two", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)
}

type failingStore struct {
	domain.DocumentStore
}

func (failingStore) FetchAll(context.Context) ([]domain.ChunkRecord, error) {
	return nil, errors.New("connection refused")
}

func TestRetrieve_StoreFailureIsDistinguishable(t *testing.T) {
	r := NewRanker(embedding.New(nil, embedding.Options{}, nil), failingStore{}, nil)
	got, err := r.Retrieve(context.Background(), "query", 3)
	assert.Nil(t, got)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetrieve_CancelledContext(t *testing.T) {
	r := newTestRanker(t, fallbackRecord("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Retrieve(ctx, "x", 3)
	assert.ErrorIs(t, err, ErrEmbedQuery)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRank_OrderAndLength(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	query := randomVector(rng, 16)
	var cands []domain.ChunkRecord
	for i := 0; i < 40; i++ {
		cands = append(cands, domain.ChunkRecord{ID: string(rune('a' + i%26)), Embedding: randomVector(rng, 16)})
	}
	for _, k := range []int{1, 5, 40, 100} {
		got, dropped := Rank(query, cands, k)
		assert.Empty(t, dropped)
		assert.Len(t, got, min(k, len(cands)))
		for i := 1; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
		}
	}
}

func TestRank_StableTies(t *testing.T) {
	v := []float64{1, 0}
	cands := []domain.ChunkRecord{
		{ID: "low", Embedding: []float64{0, 1}},
		{ID: "first", Embedding: []float64{2, 0}},
		{ID: "second", Embedding: []float64{3, 0}},
		{ID: "third", Embedding: []float64{1, 0}},
	}
	got, _ := Rank(v, cands, 4)
	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"first", "second", "third", "low"}, ids)
}

func TestRank_ExcludesInvalid(t *testing.T) {
	query := []float64{1, 0, 0}
	cands := []domain.ChunkRecord{
		{ID: "nil"},
		{ID: "short", Embedding: []float64{1, 0}},
		{ID: "zero", Embedding: []float64{0, 0, 0}},
		{ID: "nan", Embedding: []float64{math.NaN(), 0, 0}},
		{ID: "ok", Embedding: []float64{0.5, 0.5, 0}},
	}
	got, dropped := Rank(query, cands, 10)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
	assert.Len(t, dropped, 4)
	assert.Equal(t, "dimension mismatch", dropped[1].Reason)
	assert.Equal(t, 2, dropped[1].Dimension)
}

func TestRank_ZeroQueryYieldsNothing(t *testing.T) {
	got, dropped := Rank(make([]float64, 3), []domain.ChunkRecord{{ID: "a", Embedding: []float64{1, 2, 3}}}, 3)
	assert.Empty(t, got)
	assert.Len(t, dropped, 1)
}

func randomVector(rng *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.Float64()*2 - 1
	}
	return v
}
