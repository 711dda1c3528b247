package domain

import (
	"context"
	"time"
)

// Dimension is the fixed embedding length for every stored chunk.
const Dimension = 768

// Metadata describes where a chunk came from.
type Metadata struct {
	Filename    string    `json:"filename"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkRecord is the unit of storage and retrieval. Records are immutable once
// inserted. A nil or short Embedding marks a corrupt record; it stays in the
// store but is never ranked.
type ChunkRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Embedding []float64 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
}

// Source is a ranked projection of a ChunkRecord produced during retrieval.
type Source struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
	Similarity float64  `json:"similarity"`
}

// Chunker splits raw document text into retrieval-sized pieces.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// DocumentStore persists chunk records.
type DocumentStore interface {
	// Insert writes a batch and assigns IDs to records that have none.
	Insert(ctx context.Context, records []ChunkRecord) error
	// FetchAll returns every record in a stable order.
	FetchAll(ctx context.Context) ([]ChunkRecord, error)
	DeleteOlderThan(ctx context.Context, ts time.Time) (int, error)
	DeleteAll(ctx context.Context) error
}

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the input to a text-completion service. Sources are the
// retrieved chunks already rendered into System.
type Prompt struct {
	System   string
	Messages []Message
	Sources  []Source
}

// Generator produces a final answer from a prompt.
type Generator interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
