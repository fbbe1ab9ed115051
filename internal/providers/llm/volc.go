// Package llm wraps the Ark chat completions endpoint used for transcript
// polish and hook script generation.
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

	"hookforge/internal/config"
	"hookforge/internal/domain"
	"hookforge/internal/providers/jsonx"
)

const (
	chatPath       = "/api/v3/chat/completions"
	defaultTimeout = 120 * time.Second
)

type Options struct {
	HTTPClient *http.Client
}

type Client struct {
	client *http.Client
}

func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// GenerateText sends a system+user prompt pair and returns the model's text
// output.
func (c *Client) GenerateText(ctx context.Context, cfg config.LLMConfig, systemPrompt, userPrompt string) (string, error) {
	if cfg.APIKey == "" {
		return "", domain.Permanent(fmt.Errorf("llm api_key is required"))
	}

	body := chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: cfg.Temperature,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("llm encode request: %w", err))
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + chatPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", domain.Permanent(fmt.Errorf("llm build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Transient(fmt.Errorf("llm request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", domain.Transient(fmt.Errorf("llm read response: %w", err))
	}
	if resp.StatusCode >= 400 {
		failure := fmt.Errorf("llm request failed: %d %s", resp.StatusCode, truncate(string(raw), 500))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", domain.Transient(failure)
		}
		return "", domain.Permanent(failure)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", domain.Permanent(fmt.Errorf("llm response is not json: %s", truncate(string(raw), 200)))
	}
	text := ParseText(payload)
	if text == "" {
		return "", domain.Permanent(fmt.Errorf("llm response has no text content: %s", truncate(string(raw), 200)))
	}
	return text, nil
}

// ParseText extracts model output from a chat completion payload, tolerating
// the handful of shapes the endpoint has been seen to return.
func ParseText(payload map[string]any) string {
	if choices, ok := payload["choices"].([]any); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]any); ok {
			if message, ok := first["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return strings.TrimSpace(content)
				}
			}
			if content, ok := first["content"].(string); ok {
				return strings.TrimSpace(content)
			}
		}
	}
	if output, ok := payload["output_text"].(string); ok {
		return strings.TrimSpace(output)
	}
	return jsonx.FirstString(jsonx.DeepFind(payload, "text", "content"))
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
