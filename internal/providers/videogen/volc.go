// Package videogen wraps the Ark content generation task endpoints.
package videogen

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
	tasksPath       = "/api/v3/contents/generations/tasks"
	defaultTimeout  = 10 * time.Minute
	downloadTimeout = 3 * time.Minute
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

// TaskState is the coarse status of a generation task.
type TaskState int

const (
	StatePending TaskState = iota
	StateReady
	StateFailed
)

// PollResult is one status observation of a generation task.
type PollResult struct {
	State    TaskState
	VideoURL string
	Status   string
}

// Submit creates a generation task and returns its id. The endpoint's
// accepted parameter shape varies by model generation, so a sequence of
// payload templates is tried; 400/422 advances to the next template, any
// other failure stops.
func (c *Client) Submit(ctx context.Context, cfg config.VideoConfig, prompt string, durationSeconds, width, height int) (string, error) {
	if cfg.APIKey == "" {
		return "", domain.Permanent(fmt.Errorf("video api_key is required"))
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + tasksPath
	var attempts []string

	for idx, payload := range submitPayloadCandidates(cfg, prompt, durationSeconds, width, height) {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return "", domain.Permanent(fmt.Errorf("video encode request: %w", err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
		if err != nil {
			return "", domain.Permanent(fmt.Errorf("video build request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", domain.Transient(fmt.Errorf("video submit: %w", err))
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return "", domain.Transient(fmt.Errorf("video read response: %w", readErr))
		}

		if resp.StatusCode >= 400 {
			attempts = append(attempts, fmt.Sprintf("attempt=%d:http=%d:msg=%s", idx+1, resp.StatusCode, truncate(string(raw), 220)))
			if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
				continue
			}
			failure := fmt.Errorf("video submit failed: %d %s", resp.StatusCode, truncate(string(raw), 500))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return "", domain.Transient(failure)
			}
			return "", domain.Permanent(failure)
		}

		var payloadJSON map[string]any
		if err := json.Unmarshal(raw, &payloadJSON); err != nil {
			return "", domain.Permanent(fmt.Errorf("video submit response is not json: %s", truncate(string(raw), 200)))
		}
		if taskID := jsonx.FirstString(jsonx.DeepFind(payloadJSON, "task_id", "id")); taskID != "" {
			return taskID, nil
		}
		attempts = append(attempts, fmt.Sprintf("attempt=%d:http=%d:missing_task_id", idx+1, resp.StatusCode))
	}

	return "", domain.Permanent(fmt.Errorf(
		"video submit failed after payload fallbacks: %s", truncate(strings.Join(attempts, " | "), 1200)))
}

// Poll reads the task status once. The caller owns the polling loop so it
// can check cancellation and deadlines between observations.
func (c *Client) Poll(ctx context.Context, cfg config.VideoConfig, taskID string) (PollResult, error) {
	url := strings.TrimRight(cfg.BaseURL, "/") + tasksPath + "/" + taskID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PollResult{}, domain.Permanent(fmt.Errorf("video build poll request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return PollResult{}, domain.Transient(fmt.Errorf("video poll: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PollResult{}, domain.Transient(fmt.Errorf("video read poll response: %w", err))
	}
	if resp.StatusCode >= 400 {
		failure := fmt.Errorf("video polling failed: %d %s", resp.StatusCode, truncate(string(raw), 500))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return PollResult{}, domain.Transient(failure)
		}
		return PollResult{}, domain.Permanent(failure)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PollResult{}, domain.Transient(fmt.Errorf("video poll response is not json: %s", truncate(string(raw), 200)))
	}

	status := strings.ToLower(jsonx.FirstString(jsonx.DeepFind(payload, "status", "state")))
	switch status {
	case "succeeded", "success", "completed", "done":
		videoURL := jsonx.FirstString(jsonx.DeepFind(payload, "video_url", "url", "output_url", "file_url", "download_url"))
		if videoURL == "" {
			return PollResult{}, domain.Permanent(fmt.Errorf("video result missing downloadable url"))
		}
		return PollResult{State: StateReady, VideoURL: videoURL, Status: status}, nil
	case "failed", "error", "canceled", "cancelled":
		return PollResult{State: StateFailed, Status: status}, nil
	default:
		return PollResult{State: StatePending, Status: status}, nil
	}
}

// Download streams the generated video at url into w.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Permanent(fmt.Errorf("video build download request: %w", err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("video download: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		failure := fmt.Errorf("video download failed: %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return domain.Transient(failure)
		}
		return domain.Permanent(failure)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return domain.Transient(fmt.Errorf("video download copy: %w", err))
	}
	return nil
}

func submitPayloadCandidates(cfg config.VideoConfig, prompt string, durationSeconds, width, height int) []map[string]any {
	duration := max(1, durationSeconds)
	safeWidth := max(1, width)
	safeHeight := max(1, height)
	content := []map[string]any{{"type": "text", "text": prompt}}

	// Current Ark content schema first, legacy prompt payload last.
	return []map[string]any{
		{
			"model":    cfg.Model,
			"content":  content,
			"duration": duration,
			"width":    safeWidth,
			"height":   safeHeight,
		},
		{
			"model":    cfg.Model,
			"content":  content,
			"duration": duration,
			"size":     fmt.Sprintf("%dx%d", safeWidth, safeHeight),
		},
		{
			"model":    cfg.Model,
			"content":  content,
			"duration": duration,
		},
		{
			"model":   cfg.Model,
			"content": content,
		},
		{
			"model":      cfg.Model,
			"prompt":     prompt,
			"duration":   duration,
			"resolution": fmt.Sprintf("%dx%d", safeWidth, safeHeight),
		},
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
