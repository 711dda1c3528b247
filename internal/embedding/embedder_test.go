package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ragsearch/internal/domain"
)

type fakeClient struct {
	vec   []float64
	err   error
	delay time.Duration
	got   []string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) EmbedContent(ctx context.Context, text string) ([]float64, error) {
	f.got = append(f.got, text)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.vec, f.err
}

func constVector(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestFallback_Dimension(t *testing.T) {
	for _, text := range []string{"", "   ", "a", "apple banana", strings.Repeat("long text ", 500)} {
		assert.Len(t, Fallback(text, domain.Dimension), domain.Dimension, "text %q", text)
	}
}

func TestFallback_EmptyTextIsZeroVector(t *testing.T) {
	for _, v := range Fallback("", domain.Dimension) {
		require.Zero(t, v)
	}
}

func TestFallback_KnownValues(t *testing.T) {
	vec := Fallback("a", domain.Dimension)
	for i, v := range vec {
		if i == 97 {
			assert.Equal(t, 1.0, v)
			continue
		}
		assert.Zero(t, v, "index %d", i)
	}

	// 'a'=97 at c=0 -> 97; 'b'=98 at c=1 -> 196
	vec = Fallback("AB", domain.Dimension)
	assert.InDelta(t, 1/math.Sqrt2, vec[97], 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, vec[196], 1e-12)
}

func nonZero(vec []float64) []int {
	var idx []int
	for i, v := range vec {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

func TestFallback_LeadingWhitespaceShiftsWordIndex(t *testing.T) {
	plain := []int{8, 97, 196, 224, 332, 336, 388, 396, 432, 505, 660}
	shifted := []int{96, 114, 194, 210, 222, 242, 294, 396, 448, 582, 672}

	assert.Equal(t, plain, nonZero(Fallback("apple banana", domain.Dimension)))
	assert.Equal(t, shifted, nonZero(Fallback(" apple banana", domain.Dimension)))
	assert.Equal(t, shifted, nonZero(Fallback("\u00a0apple\tbanana", domain.Dimension)))
	assert.Equal(t, plain, nonZero(Fallback("apple banana \n", domain.Dimension)))
}

func TestFallback_Deterministic(t *testing.T) {
	texts := []string{"apple banana", "The quick brown fox.", "ünïcode ✓ text", "car truck engine"}
	for _, text := range texts {
		a := Fallback(text, domain.Dimension)
		b := Fallback(text, domain.Dimension)
		assert.Equal(t, a, b, "text %q", text)
	}
}

func TestFallback_Normalized(t *testing.T) {
	vec := Fallback("car truck engine", domain.Dimension)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-12)
}

func TestEmbedder_PrimarySuccess(t *testing.T) {
	client := &fakeClient{vec: constVector(domain.Dimension, 0.5)}
	e := New(client, Options{}, zap.NewNop())

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, client.vec, vec)

	calls, fallbacks := e.Stats()
	assert.EqualValues(t, 1, calls)
	assert.Zero(t, fallbacks)
}

func TestEmbedder_TruncatesPrimaryInput(t *testing.T) {
	client := &fakeClient{vec: constVector(domain.Dimension, 1)}
	e := New(client, Options{MaxInputChars: 2048}, zap.NewNop())

	_, err := e.Embed(context.Background(), strings.Repeat("é", 3000))
	require.NoError(t, err)
	require.Len(t, client.got, 1)
	assert.Equal(t, strings.Repeat("é", 2048), client.got[0])
}

func TestEmbedder_FallsBackOnEveryFailureClass(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"quota", &fakeClient{err: errors.New("googleapi: Error 429: You exceeded your current quota")}},
		{"server error", &fakeClient{err: &StatusError{Provider: "fake", Code: 503, Status: "503 Service Unavailable"}}},
		{"malformed", &fakeClient{err: ErrMalformedResponse}},
		{"wrong dimension", &fakeClient{vec: constVector(500, 1)}},
		{"timeout", &fakeClient{vec: constVector(domain.Dimension, 1), delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.client, Options{Timeout: 20 * time.Millisecond}, zap.NewNop())
			vec, err := e.Embed(context.Background(), "apple banana")
			require.NoError(t, err)
			assert.Equal(t, Fallback("apple banana", domain.Dimension), vec)

			_, fallbacks := e.Stats()
			assert.EqualValues(t, 1, fallbacks)
		})
	}
}

func TestEmbedder_FallbackUsesFullText(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	e := New(&fakeClient{err: errors.New("boom")}, Options{MaxInputChars: 10}, zap.NewNop())
	vec, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, Fallback(text, domain.Dimension), vec)
}

func TestEmbedder_NoPrimary(t *testing.T) {
	e := New(nil, Options{}, nil)
	assert.Equal(t, "fallback", e.Name())
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, vec, domain.Dimension)
}

func TestEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(nil, Options{}, zap.NewNop())
	_, err := e.Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{errors.New("[429 Too Many Requests] quota exceeded"), ClassQuota},
		{errors.New("RESOURCE_EXHAUSTED"), ClassQuota},
		{&StatusError{Code: 429, Status: "429 Too Many Requests"}, ClassQuota},
		{&StatusError{Code: 502, Status: "502 Bad Gateway"}, ClassTransient},
		{fmt.Errorf("calling provider: %w", context.DeadlineExceeded), ClassTransient},
		{&StatusError{Code: 400, Status: "400 Bad Request"}, ClassPermanent},
		{ErrMalformedResponse, ClassPermanent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "error %v", tt.err)
	}
	assert.Equal(t, ErrorClass(""), Classify(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "日本", Truncate("日本語", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
