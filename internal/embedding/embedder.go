package embedding

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ragsearch/internal/domain"
)

const (
	DefaultMaxInputChars = 2048
	DefaultTimeout       = 10 * time.Second
)

// Options tunes the Embedder.
type Options struct {
	Dimension     int
	MaxInputChars int
	Timeout       time.Duration
}

// Embedder calls the primary client and falls back to the hash embedding on
// any failure, so Embed always yields a vector of the configured dimension.
type Embedder struct {
	primary   Client
	dimension int
	maxInput  int
	timeout   time.Duration
	logger    *zap.Logger

	primaryCalls atomic.Int64
	fallbacks    atomic.Int64
}

// New builds an Embedder. A nil primary means fallback only.
func New(primary Client, opts Options, logger *zap.Logger) *Embedder {
	if opts.Dimension <= 0 {
		opts.Dimension = domain.Dimension
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		primary:   primary,
		dimension: opts.Dimension,
		maxInput:  opts.MaxInputChars,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Name identifies the primary provider.
func (e *Embedder) Name() string {
	if e.primary == nil {
		return "fallback"
	}
	return e.primary.Name()
}

func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns an error only when ctx is already done on entry.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.primary == nil {
		e.fallbacks.Add(1)
		return Fallback(text, e.dimension), nil
	}
	vec, err := e.embedPrimary(ctx, text)
	if err == nil {
		return vec, nil
	}
	e.fallbacks.Add(1)
	e.logger.Warn("primary embedding failed, using fallback",
		zap.String("provider", e.primary.Name()),
		zap.String("class", string(Classify(err))),
		zap.Error(err))
	return Fallback(text, e.dimension), nil
}

func (e *Embedder) embedPrimary(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	e.primaryCalls.Add(1)
	vec, err := e.primary.EmbedContent(ctx, Truncate(text, e.maxInput))
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("%w: got dimension %d, want %d", ErrMalformedResponse, len(vec), e.dimension)
	}
	return vec, nil
}

// Stats reports how many primary calls were made and how many embeddings
// came from the fallback path.
func (e *Embedder) Stats() (primaryCalls, fallbacks int64) {
	return e.primaryCalls.Load(), e.fallbacks.Load()
}

// Truncate keeps at most max code points of text.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
