package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/docqa/llm/retry"
	"github.com/BaSui01/docqa/types"
)

// ClientConfig holds the configuration for the chat-completion client.
type ClientConfig struct {
	// BaseURL is the base URL for the provider's API.
	BaseURL string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// Model is the model used for all completions.
	Model string

	// Temperature controls sampling randomness. Zero for deterministic answers.
	Temperature float64

	// MaxTokens caps the completion length.
	MaxTokens int

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// MaxRetries is the retry count for retryable upstream failures.
	MaxRetries int

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64

	// EndpointPath is the chat completions endpoint path.
	// Defaults to "/v1/chat/completions".
	EndpointPath string
}

// Client is an OpenAI-compatible chat-completion client with rate limiting
// and exponential-backoff retries.
type Client struct {
	cfg     ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	retryer retry.Retryer
	logger  *zap.Logger
}

// NewClient creates a new chat-completion client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm_client"))

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.InitialDelay = 500 * time.Millisecond
	policy.Classifier = types.IsRetryable

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		retryer: retry.NewBackoffRetryer(policy, logger),
		logger:  logger,
	}
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
		Finish  string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a single user prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []Message{{Role: "user", Content: prompt}})
}

// Chat sends a full message list and returns the completion text.
// Calls are rate limited and retried on retryable upstream errors.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	result, err := c.retryer.DoWithResult(ctx, func() (any, error) {
		return c.doChat(ctx, messages)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) doChat(ctx context.Context, messages []Message) (string, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   c.cfg.Model,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", mapChatError(resp.StatusCode, string(respBody), c.cfg.Model)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    "completion returned no choices",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   c.cfg.Model,
		}
	}

	c.logger.Debug("completion finished",
		zap.Duration("latency", time.Since(start)),
		zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
		zap.Int("completion_tokens", chatResp.Usage.CompletionTokens),
	)

	return chatResp.Choices[0].Message.Content, nil
}

// mapChatError maps an HTTP status to a types.Error.
func mapChatError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	}

	return &types.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}
