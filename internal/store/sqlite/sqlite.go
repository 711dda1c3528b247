// Package sqlite keeps chunk records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"ragsearch/internal/domain"
	"ragsearch/internal/store/codec"
)

//go:embed schema.sql
var schema string

// Store implements domain.DocumentStore on SQLite. created_at is stored as
// Unix nanoseconds so range deletes compare integers.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens or creates a database at the given path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("sqlite store opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes the batch in one transaction.
func (s *Store) Insert(ctx context.Context, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, content, embedding, filename, chunk_index, total_chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			r.Content,
			codec.EncodeVector(r.Embedding),
			r.Metadata.Filename,
			r.Metadata.ChunkIndex,
			r.Metadata.TotalChunks,
			r.Metadata.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// FetchAll returns every chunk in insertion order. A chunk whose embedding
// blob cannot be decoded comes back with a nil embedding.
func (s *Store) FetchAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, filename, chunk_index, total_chunks, created_at
		FROM chunks
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []domain.ChunkRecord
	for rows.Next() {
		var (
			r       domain.ChunkRecord
			blob    []byte
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Content, &blob, &r.Metadata.Filename,
			&r.Metadata.ChunkIndex, &r.Metadata.TotalChunks, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Metadata.CreatedAt = time.Unix(0, created).UTC()
		if r.Embedding, err = codec.DecodeVector(blob); err != nil {
			s.logger.Warn("undecodable embedding", zap.String("id", r.ID), zap.Error(err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE created_at < ?", ts.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted chunks: %w", err)
	}
	return int(n), nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	return nil
}
