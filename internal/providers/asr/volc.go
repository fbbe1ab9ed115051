// Package asr wraps the Volcengine big-model speech recognition endpoint.
package asr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookforge/internal/config"
	"hookforge/internal/domain"
	"hookforge/internal/providers/jsonx"
)

const (
	flashPath     = "/api/v3/auc/bigmodel/recognize/flash"
	statusOK      = "20000000"
	defaultClient = 120 * time.Second
)

// resourceFallbacks are tried after the configured resource id whenever the
// service answers with a permission error for the current credentials.
var resourceFallbacks = []string{
	"volc.bigasr.auc_turbo",
	"volc.seedasr.auc",
	"volc.bigasr.auc",
}

type Options struct {
	HTTPClient *http.Client
}

type Client struct {
	client *http.Client
}

func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultClient}
	}
	return &Client{client: client}
}

// Recognize transcribes audio with the flash recognition endpoint. The
// configured resource id is tried first; on permission errors the known
// fallback ids are tried before giving up. Any non-permission failure stops
// the sequence immediately.
func (c *Client) Recognize(ctx context.Context, cfg config.ASRConfig, audio []byte) (string, error) {
	if cfg.AppID == "" || cfg.AccessToken == "" {
		return "", domain.Permanent(fmt.Errorf("asr appid/access_token is required"))
	}

	audioB64 := base64.StdEncoding.EncodeToString(audio)
	url := strings.TrimRight(cfg.BaseURL, "/") + flashPath
	var tried []string

	for _, resourceID := range candidateResourceIDs(cfg) {
		payload, err := c.recognizeOnce(ctx, cfg, url, resourceID, audioB64)
		if err != nil {
			var perm *permissionError
			if asPermission(err, &perm) {
				tried = append(tried, fmt.Sprintf("%s: %s", resourceID, perm.Error()))
				continue
			}
			return "", err
		}
		return ParseText(payload), nil
	}

	return "", domain.Permanent(fmt.Errorf(
		"asr resource not granted for current credentials, tried: %s",
		strings.Join(tried, " | ")))
}

func (c *Client) recognizeOnce(ctx context.Context, cfg config.ASRConfig, url, resourceID, audioB64 string) (map[string]any, error) {
	body := map[string]any{
		"user":    map[string]any{"uid": cfg.AppID},
		"audio":   map[string]any{"data": audioB64},
		"request": map[string]any{"model_name": "bigmodel"},
	}
	if cfg.BoostingTableName != "" {
		body["request"].(map[string]any)["boosting_table_name"] = cfg.BoostingTableName
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("asr encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("asr build request: %w", err))
	}
	req.Header.Set("X-Api-App-Key", cfg.AppID)
	req.Header.Set("X-Api-Access-Key", cfg.AccessToken)
	req.Header.Set("X-Api-Resource-Id", resourceID)
	req.Header.Set("X-Api-Request-Id", uuid.NewString())
	req.Header.Set("X-Api-Sequence", "-1")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("asr request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("asr read response: %w", err))
	}

	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)

	statusCode := headerStatusCode(resp, payload)
	statusMessage := headerStatusMessage(resp, payload)

	if resp.StatusCode >= 400 {
		if isPermissionText(string(raw)) || isPermissionText(statusMessage) {
			return nil, &permissionError{message: truncate(statusMessage+" "+string(raw), 180)}
		}
		return nil, classifyHTTP(resp.StatusCode, fmt.Errorf(
			"asr request failed: %d %s", resp.StatusCode, truncate(string(raw), 500)))
	}

	if statusCode != "" && statusCode != statusOK {
		if isPermissionText(statusMessage) {
			return nil, &permissionError{message: truncate(statusMessage, 180)}
		}
		return nil, domain.Permanent(fmt.Errorf(
			"asr business error: %s %s", statusCode, truncate(statusMessage, 500)))
	}

	if payload == nil {
		return nil, domain.Permanent(fmt.Errorf("asr response is not json: %s", truncate(string(raw), 200)))
	}
	return payload, nil
}

// ParseText pulls the transcript out of a recognition payload, preferring
// result.text and falling back to utterance lists, then any text field.
func ParseText(payload map[string]any) string {
	if result, ok := payload["result"].(map[string]any); ok {
		if direct, ok := result["text"].(string); ok && strings.TrimSpace(direct) != "" {
			return strings.TrimSpace(direct)
		}
	}

	for _, block := range jsonx.DeepFind(payload, "utterances", "sentences") {
		rows, ok := block.([]any)
		if !ok {
			continue
		}
		var parts []string
		for _, row := range rows {
			m, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := m["text"].(string); ok && strings.TrimSpace(text) != "" {
				parts = append(parts, strings.TrimSpace(text))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return jsonx.FirstString(jsonx.DeepFind(payload, "text"))
}

func candidateResourceIDs(cfg config.ASRConfig) []string {
	var candidates []string
	if configured := strings.TrimSpace(cfg.ResourceID); configured != "" {
		candidates = append(candidates, configured)
	}
	for _, fallback := range resourceFallbacks {
		seen := false
		for _, c := range candidates {
			if c == fallback {
				seen = true
				break
			}
		}
		if !seen {
			candidates = append(candidates, fallback)
		}
	}
	return candidates
}

func headerStatusCode(resp *http.Response, payload map[string]any) string {
	if code := resp.Header.Get("X-Api-Status-Code"); code != "" {
		return code
	}
	if header, ok := payload["header"].(map[string]any); ok {
		switch code := header["code"].(type) {
		case string:
			return code
		case float64:
			return fmt.Sprintf("%.0f", code)
		}
	}
	return ""
}

func headerStatusMessage(resp *http.Response, payload map[string]any) string {
	if msg := resp.Header.Get("X-Api-Message"); msg != "" {
		return msg
	}
	if header, ok := payload["header"].(map[string]any); ok {
		if msg, ok := header["message"].(string); ok {
			return msg
		}
	}
	return ""
}

var permissionPatterns = []string{
	"requested grant not found",
	"requested resource not granted",
	"not granted",
}

func isPermissionText(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "resourceid") && strings.Contains(lower, "not allowed") {
		return true
	}
	for _, p := range permissionPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// permissionError marks a resource-grant rejection that should trigger the
// next resource id candidate rather than fail the stage.
type permissionError struct {
	message string
}

func (e *permissionError) Error() string { return e.message }

func asPermission(err error, target **permissionError) bool {
	pe, ok := err.(*permissionError)
	if ok {
		*target = pe
	}
	return ok
}

func classifyHTTP(status int, err error) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return domain.Transient(err)
	}
	return domain.Permanent(err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
