// Package postgres keeps chunk records in PostgreSQL through lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"ragsearch/internal/domain"
	"ragsearch/internal/store/codec"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    seq          BIGSERIAL PRIMARY KEY,
    id           UUID        NOT NULL UNIQUE,
    content      TEXT        NOT NULL,
    embedding    BYTEA,
    filename     TEXT        NOT NULL,
    chunk_index  INTEGER     NOT NULL,
    total_chunks INTEGER     NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
`

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements domain.DocumentStore on a documents table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an existing connection. The schema is not touched.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open connects to dsn, verifies the connection and creates the schema.
func Open(ctx context.Context, dsn string, pool PoolConfig, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := New(db, logger)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("postgres store connected",
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("max_idle_conns", pool.MaxIdleConns),
	)
	return s, nil
}

func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes the batch in one transaction. Nothing is stored if any row fails.
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
		INSERT INTO documents (id, content, embedding, filename, chunk_index, total_chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
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
			r.Metadata.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context) ([]domain.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, embedding, filename, chunk_index, total_chunks, created_at
		FROM documents
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []domain.ChunkRecord
	for rows.Next() {
		var (
			r    domain.ChunkRecord
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Content, &blob, &r.Metadata.Filename,
			&r.Metadata.ChunkIndex, &r.Metadata.TotalChunks, &r.Metadata.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if r.Embedding, err = codec.DecodeVector(blob); err != nil {
			s.logger.Warn("undecodable embedding", zap.String("id", r.ID), zap.Error(err))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, ts time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE created_at < $1", ts)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted documents: %w", err)
	}
	return int(n), nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	return nil
}
