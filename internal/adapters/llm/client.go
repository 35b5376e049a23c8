// Package llm implements the decision provider port against any
// OpenAI-compatible chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"llmTraderBot/internal/ports"
)

// Config holds the parameters for the chat-completions endpoint.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  ports.Logger
}

// Client implements ports.DecisionProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     ports.Logger
}

// NewClient creates and validates a new chat-completions client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model name is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("llm: logger is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GetDecision sends the system prompt and snapshot payload and returns the
// model's raw reply text. The reply is untrusted free-form output.
func (c *Client) GetDecision(ctx context.Context, systemPrompt, userPayload string) (string, error) {
	op := "llm.GetDecision"

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPayload},
		},
		// Low temperature keeps the JSON reply shape stable.
		Temperature: 0.2,
		MaxTokens:   2000,
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("llm request: %w: %v", ports.ErrTimeout, err)
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm request: %w: %v", ports.ErrContextCanceled, ctx.Err())
		}
		return "", fmt.Errorf("llm request: %w: %v", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("llm http 429: %w", ports.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("llm http %d: %w", resp.StatusCode, ports.ErrAuthenticationFailed)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("llm http %d: upstream unavailable", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: response carried no choices")
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{
		"model":   c.model,
		"elapsed": time.Since(start).String(),
	})
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
