package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"ragsearch/internal/answer"
	"ragsearch/internal/chunker"
	"ragsearch/internal/config"
	"ragsearch/internal/domain"
	"ragsearch/internal/embedding"
	"ragsearch/internal/embedding/gemini"
	"ragsearch/internal/embedding/openai"
	"ragsearch/internal/logging"
	"ragsearch/internal/service"
	"ragsearch/internal/store/bolt"
	"ragsearch/internal/store/memory"
	"ragsearch/internal/store/postgres"
	"ragsearch/internal/store/qdrant"
	"ragsearch/internal/store/sqlite"
)

type store interface {
	domain.DocumentStore
	io.Closer
}

// app holds the assembled components for one command invocation.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	embedder *embedding.Embedder
	store    store
	svc      *service.RAGService
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	emb, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	extractive := answer.NewExtractive(cfg.Generator.MaxSentences)
	var gen domain.Generator = extractive
	switch cfg.Generator.Type {
	case "extractive", "":
	case "openai":
		o := cfg.Generator.OpenAI
		if o == nil {
			_ = st.Close()
			return nil, fmt.Errorf("openai generator config missing")
		}
		chat, err := answer.NewChat(answer.ChatConfig{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			Temperature: o.Temperature,
			MaxRetries:  o.MaxRetries,
			Timeout:     time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("generator init failed: %w", err)
		}
		gen = chat
	default:
		_ = st.Close()
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}

	svc := service.NewRAGService(ch, emb, st, gen, service.Options{
		TopK:      cfg.Retrieval.TopK,
		Workers:   cfg.Ingest.Workers,
		Retention: cfg.Sweeper.Retention(),
		Fallback:  extractive,
	}, logger)

	logger.Debug("components ready",
		zap.String("embedder", emb.Name()),
		zap.String("store", cfg.Store.Type),
		zap.String("generator", gen.Name()))
	return &app{cfg: cfg, logger: logger, embedder: emb, store: st, svc: svc}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newEmbedder(cfg *config.AppConfig, logger *zap.Logger) (*embedding.Embedder, error) {
	var primary embedding.Client
	switch cfg.Embedder.Type {
	case "fallback", "":
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Dimensions: cfg.Embedder.Dimension,
			MaxRetries: o.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		primary = client
	case "gemini":
		g := cfg.Embedder.Gemini
		if g == nil {
			return nil, fmt.Errorf("gemini embedder config missing")
		}
		client, err := gemini.NewClient(gemini.Config{
			BaseURL:   g.BaseURL,
			APIKeyEnv: g.APIKeyEnv,
			Model:     g.Model,
		})
		if err != nil {
			return nil, err
		}
		primary = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	return embedding.New(primary, embedding.Options{
		Dimension:     cfg.Embedder.Dimension,
		MaxInputChars: cfg.Embedder.MaxInputChars,
		Timeout:       cfg.Embedder.Timeout(),
	}, logger), nil
}

func newStore(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (store, error) {
	switch cfg.Store.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		if cfg.Store.SQLite == nil {
			return nil, fmt.Errorf("sqlite config missing")
		}
		return sqlite.Open(cfg.Store.SQLite.Path, logger)
	case "bolt":
		if cfg.Store.Bolt == nil {
			return nil, fmt.Errorf("bolt config missing")
		}
		return bolt.Open(cfg.Store.Bolt.Path, logger)
	case "postgres":
		p := cfg.Store.Postgres
		if p == nil {
			return nil, fmt.Errorf("postgres config missing")
		}
		dsn := p.DSN
		if dsn == "" {
			dsn = os.Getenv(p.DSNEnv)
		}
		if dsn == "" {
			return nil, fmt.Errorf("missing postgres DSN in env %s", p.DSNEnv)
		}
		return postgres.Open(ctx, dsn, postgres.PoolConfig{
			MaxOpenConns:    p.MaxOpenConns,
			MaxIdleConns:    p.MaxIdleConns,
			ConnMaxLifetime: time.Duration(p.ConnMaxLifetimeSecs) * time.Second,
		}, logger)
	case "qdrant":
		q := cfg.Store.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		var apiKey string
		if q.APIKeyEnv != "" {
			apiKey = os.Getenv(q.APIKeyEnv)
		}
		st := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     apiKey,
			Collection: q.Collection,
			Dimension:  cfg.Embedder.Dimension,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}, logger)
		if err := st.Init(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store: %s", cfg.Store.Type)
	}
}
