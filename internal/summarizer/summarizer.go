package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"errata-harvester/pkg/cache"
)

const (
	// PassthroughPrefix tags the synopsis when no backend is configured.
	PassthroughPrefix = "[AI summary skipped] "
	// Failed replaces the summary when the backend call did not produce one.
	Failed = "AI summary failed"

	DefaultLanguage = "Korean"
	DefaultTimeout  = 60 * time.Second
)

const (
	OutcomeSummarized  = "summarized"
	OutcomePassthrough = "passthrough"
	OutcomeFailed      = "failed"
)

// Config selects the chat-completions backend. Endpoint, Token and Model are
// all required; missing any of them disables the backend.
type Config struct {
	Endpoint string
	Token    string
	Model    string
	Language string
	Timeout  time.Duration
}

func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Token != "" && c.Model != ""
}

type Client struct {
	cfg    Config
	api    openai.Client
	cache  *cache.Memory[string]
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{cfg: cfg, cache: cache.NewMemory[string](0), logger: logger}
	if cfg.Enabled() {
		c.api = openai.NewClient(
			option.WithBaseURL(baseURL(cfg.Endpoint)),
			option.WithAPIKey(cfg.Token),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			option.WithMaxRetries(0),
		)
	} else {
		logger.Info("summarization backend not configured, synopses are passed through")
	}
	return c
}

// baseURL accepts either an API root or the full chat-completions URL.
func baseURL(endpoint string) string {
	u := strings.TrimRight(endpoint, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}

// Summarize never fails: it returns a summary, a tagged passthrough of text,
// or Failed.
func (c *Client) Summarize(ctx context.Context, text string) string {
	if !c.cfg.Enabled() {
		return PassthroughPrefix + text
	}
	if s, ok := c.cache.Get(text); ok {
		return s
	}
	s, err := c.complete(ctx, text)
	if err != nil {
		c.logger.Warn("summarization failed", zap.String("endpoint", c.cfg.Endpoint), zap.Error(err))
		return Failed
	}
	c.cache.Set(text, s)
	return s
}

// Classify tells which of the three outcomes produced summary.
func Classify(summary string) string {
	switch {
	case summary == Failed:
		return OutcomeFailed
	case strings.HasPrefix(summary, PassthroughPrefix):
		return OutcomePassthrough
	}
	return OutcomeSummarized
}

func (c *Client) complete(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.logger.Debug("calling summarization backend", zap.String("model", c.cfg.Model))
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf("You are a helpful assistant that summarizes security advisories into a single, concise %s sentence.", c.cfg.Language)),
			openai.UserMessage(fmt.Sprintf("Summarize the following Red Hat security advisory synopsis in one %s sentence: %s", c.cfg.Language, text)),
		},
		MaxTokens:   openai.Int(1024),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("response has empty content")
	}
	return content, nil
}
