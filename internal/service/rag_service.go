package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragsearch/internal/answer"
	"ragsearch/internal/domain"
	"ragsearch/internal/embedding"
	"ragsearch/internal/extract"
	"ragsearch/internal/retrieval"
)

const (
	DefaultWorkers   = 4
	DefaultRetention = 30 * time.Minute
)

// ErrNoQuestion is returned by Answer when the last message is not a
// non-empty user turn.
var ErrNoQuestion = errors.New("service: last message must be a user question")

// Options tunes RAGService. Zero values pick the defaults.
type Options struct {
	TopK      int
	Workers   int
	Retention time.Duration
	// Fallback answers when Generator fails. Usually the extractive generator.
	Fallback domain.Generator
	Now      func() time.Time
}

// RAGService wires chunking, embedding, storage, retrieval and answer
// generation together. All state lives in the store.
type RAGService struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	store     domain.DocumentStore
	ranker    *retrieval.Ranker
	generator domain.Generator
	fallback  domain.Generator
	topK      int
	workers   int
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewRAGService(chunker domain.Chunker, embedder domain.Embedder, store domain.DocumentStore, generator domain.Generator, opts Options, logger *zap.Logger) *RAGService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultTopK
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RAGService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		ranker:    retrieval.NewRanker(embedder, store, logger),
		generator: generator,
		fallback:  opts.Fallback,
		topK:      opts.TopK,
		workers:   opts.Workers,
		retention: opts.Retention,
		now:       opts.Now,
		logger:    logger,
	}
}

// IngestDocument chunks and embeds content and stores every chunk in one
// insert. It returns the number of chunks stored.
func (s *RAGService) IngestDocument(ctx context.Context, filename, content string) (int, error) {
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("%w: %s", extract.ErrEmptyContent, filename)
	}
	chunks, err := s.chunker.Chunk(content)
	if err != nil {
		return 0, err
	}

	vectors := make([][]float64, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, c)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	created := s.now()
	records := make([]domain.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.ChunkRecord{
			Content:   c,
			Embedding: vectors[i],
			Metadata: domain.Metadata{
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				CreatedAt:   created,
			},
		}
	}
	if err := s.store.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("store insert: %w", err)
	}
	s.logger.Info("document ingested", zap.String("filename", filename), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// FileResult reports the outcome of ingesting one file.
type FileResult struct {
	Path   string
	Chunks int
	Err    error
}

// ResolveFiles expands doublestar patterns into a sorted, de-duplicated list
// of supported files. Plain paths that exist are kept as given.
func ResolveFiles(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(p); err == nil {
				matches = []string{p}
			}
		}
		for _, m := range matches {
			if !extract.Supported(m) {
				continue
			}
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			m = filepath.Clean(m)
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no .txt, .md or .pdf files matched")
	}
	sort.Strings(out)
	return out, nil
}

// IngestFiles ingests each path in turn. A failing file does not stop the
// rest; its error is reported in the result. onDone may be nil.
func (s *RAGService) IngestFiles(ctx context.Context, paths []string, onDone func(FileResult)) []FileResult {
	results := make([]FileResult, 0, len(paths))
	for _, p := range paths {
		if ctx.Err() != nil {
			results = append(results, FileResult{Path: p, Err: ctx.Err()})
			continue
		}
		r := FileResult{Path: p}
		text, err := extract.File(p)
		if err == nil {
			r.Chunks, err = s.IngestDocument(ctx, filepath.Base(p), text)
		}
		if err != nil {
			r.Err = err
			s.logger.Warn("ingest failed", zap.String("path", p), zap.Error(err))
		}
		results = append(results, r)
		if onDone != nil {
			onDone(r)
		}
	}
	return results
}

// Retrieve returns the topK most similar chunks. topK <= 0 uses the
// configured default.
func (s *RAGService) Retrieve(ctx context.Context, query string, topK int) ([]domain.Source, error) {
	if topK <= 0 {
		topK = s.topK
	}
	return s.ranker.Retrieve(ctx, query, topK)
}

// AnswerResult is a generated answer with the sources it was grounded on.
type AnswerResult struct {
	Answer   string          `json:"answer"`
	Sources  []domain.Source `json:"sources"`
	Provider string          `json:"provider"`
	Degraded bool            `json:"degraded"`
}

// Answer retrieves context for the last user message and asks the generator.
// Retrieval or generator failures degrade the result instead of failing it;
// only a bad conversation or a cancelled context return an error.
func (s *RAGService) Answer(ctx context.Context, messages []domain.Message) (AnswerResult, error) {
	question, ok := answer.Question(messages)
	if !ok {
		return AnswerResult{}, ErrNoQuestion
	}
	var res AnswerResult
	sources, err := s.Retrieve(ctx, question, s.topK)
	if err != nil {
		if ctx.Err() != nil {
			return AnswerResult{}, ctx.Err()
		}
		s.logger.Warn("retrieval failed, answering without context", zap.Error(err))
		res.Degraded = true
	}
	res.Sources = sources

	prompt := answer.BuildPrompt(messages, sources)
	text, err := s.generator.Complete(ctx, prompt)
	if err == nil {
		res.Answer = text
		res.Provider = s.generator.Name()
		return res, nil
	}
	if ctx.Err() != nil {
		return AnswerResult{}, ctx.Err()
	}
	class := answer.Classify(err)
	s.logger.Warn("generator failed",
		zap.String("provider", s.generator.Name()),
		zap.String("class", string(class)),
		zap.Error(err))
	res.Degraded = true

	if s.fallback != nil && len(sources) > 0 {
		if text, ferr := s.fallback.Complete(ctx, prompt); ferr == nil {
			res.Answer = text
			res.Provider = s.fallback.Name()
			return res, nil
		}
	}
	res.Provider = s.generator.Name()
	if class == embedding.ClassQuota {
		res.Answer = answer.QuotaNotice
	} else {
		res.Answer = answer.ErrorNotice
	}
	return res, nil
}

// ListDocuments returns every stored chunk, newest first.
func (s *RAGService) ListDocuments(ctx context.Context) ([]domain.ChunkRecord, error) {
	records, err := s.store.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", retrieval.ErrStoreUnavailable, err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.CreatedAt.After(records[j].Metadata.CreatedAt)
	})
	return records, nil
}

// Cleanup deletes chunks older than the retention window.
func (s *RAGService) Cleanup(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	s.logger.Info("cleanup completed", zap.Int("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Clear removes every stored chunk.
func (s *RAGService) Clear(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.logger.Info("store cleared")
	return nil
}
