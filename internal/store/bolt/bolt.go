// Package bolt keeps chunk records in a single bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/store/codec"
)

var bucketChunks = []byte("chunks")

// record is the stored value. Keys are big-endian sequence numbers so a
// cursor walks chunks in insertion order.
type record struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Embedding   []byte    `json:"embedding,omitempty"`
	Filename    string    `json:"filename"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db     *bbolt.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("bolt store opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes the whole batch in one bbolt transaction.
func (s *Store) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for i, r := range records {
			id := r.ID
			if id == "" {
				id = uuid.NewString()
			}
			data, err := json.Marshal(record{
				ID:          id,
				Content:     r.Content,
				Embedding:   codec.EncodeVector(r.Embedding),
				Filename:    r.Metadata.Filename,
				ChunkIndex:  r.Metadata.ChunkIndex,
				TotalChunks: r.Metadata.TotalChunks,
				CreatedAt:   r.Metadata.CreatedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to encode chunk %d: %w", i, err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return fmt.Errorf("failed to put chunk %d: %w", i, err)
			}
		}
		return nil
	})
}

func (s *Store) FetchAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.ChunkRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Warn("skipping undecodable chunk", zap.String("key", fmt.Sprintf("%x", k)), zap.Error(err))
				return nil
			}
			vec, err := codec.DecodeVector(rec.Embedding)
			if err != nil {
				s.logger.Warn("undecodable embedding", zap.String("id", rec.ID), zap.Error(err))
			}
			out = append(out, domain.ChunkRecord{
				ID:        rec.ID,
				Content:   rec.Content,
				Embedding: vec,
				Metadata: domain.Metadata{
					Filename:    rec.Filename,
					ChunkIndex:  rec.ChunkIndex,
					TotalChunks: rec.TotalChunks,
					CreatedAt:   rec.CreatedAt,
				},
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec struct {
				CreatedAt time.Time `json:"created_at"`
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Warn("skipping undecodable chunk", zap.String("key", fmt.Sprintf("%x", k)), zap.Error(err))
				return nil
			}
			if rec.CreatedAt.Before(ts) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// bbolt forbids mutating a bucket inside ForEach
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketChunks)
		return err
	})
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
