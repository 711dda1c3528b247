package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"ragsearch/internal/domain"
	"ragsearch/internal/embedding"
)

// ChatConfig configures the OpenAI-compatible chat generator.
type ChatConfig struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	MaxRetries  int
	Timeout     time.Duration
}

// Chat calls an OpenAI-compatible chat completions endpoint.
type Chat struct {
	client      openai.Client
	model       string
	temperature float64
}

func NewChat(cfg ChatConfig) (*Chat, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Chat{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Chat) Name() string { return "openai" }

// Complete sends the system prompt followed by the conversation.
func (c *Chat) Complete(ctx context.Context, p domain.Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.Messages)+1)
	msgs = append(msgs, openai.SystemMessage(p.System))
	for _, m := range p.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case RoleSystem:
			// only our own system prompt is sent
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: msgs,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Classify sorts a completion failure the same way embedding failures are
// sorted, looking at the API status code first.
func Classify(err error) embedding.ErrorClass {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return embedding.ClassQuota
		case apiErr.StatusCode >= 500:
			return embedding.ClassTransient
		}
	}
	return embedding.Classify(err)
}
