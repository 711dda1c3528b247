package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ragsearch/internal/domain"
)

// Storage is an in-process document store. Records are kept in insertion
// order, which is the order FetchAll returns them in.
type Storage struct {
	mu      sync.RWMutex
	records []domain.ChunkRecord
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := make([]domain.ChunkRecord, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.Embedding = append([]float64(nil), r.Embedding...)
		batch[i] = r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch...)
	return nil
}

func (s *Storage) FetchAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ChunkRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *Storage) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	deleted := 0
	for _, r := range s.records {
		if r.Metadata.CreatedAt.Before(ts) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	// release references held past the new length
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = domain.ChunkRecord{}
	}
	s.records = kept
	return deleted, nil
}

func (s *Storage) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// Len reports how many records are stored.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Storage) Close() error { return nil }
