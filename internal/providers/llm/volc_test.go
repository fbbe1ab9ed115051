package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"hookforge/internal/config"
	"hookforge/internal/domain"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newClientWith(fn roundTripFunc) *Client {
	return New(Options{HTTPClient: &http.Client{Transport: fn}})
}

func testCfg() config.LLMConfig {
	cfg := config.Default().LLM
	cfg.APIKey = "key"
	return cfg
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestGenerateTextHappyPath(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("authorization = %q", got)
		}
		var body chatRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Fatalf("messages = %+v", body.Messages)
		}
		return jsonResponse(200, `{"choices":[{"message":{"content":" polished text "}}]}`), nil
	})

	text, err := client.GenerateText(context.Background(), testCfg(), "sys", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "polished text" {
		t.Fatalf("text = %q", text)
	}
}

func TestGenerateTextRateLimitIsTransient(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error":"rate limited"}`), nil
	})

	_, err := client.GenerateText(context.Background(), testCfg(), "sys", "user")
	if domain.Classify(err) != domain.ClassTransient {
		t.Fatalf("class = %v, want transient (err=%v)", domain.Classify(err), err)
	}
}

func TestGenerateTextAuthFailureIsPermanent(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(401, `{"error":"bad key"}`), nil
	})

	_, err := client.GenerateText(context.Background(), testCfg(), "sys", "user")
	if domain.Classify(err) != domain.ClassPermanent {
		t.Fatalf("class = %v, want permanent (err=%v)", domain.Classify(err), err)
	}
}

func TestGenerateTextMissingKey(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		t.Fatal("request should not be sent")
		return nil, nil
	})
	cfg := testCfg()
	cfg.APIKey = ""

	if _, err := client.GenerateText(context.Background(), cfg, "sys", "user"); err == nil {
		t.Fatal("want error")
	}
}

func TestParseTextShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"chat message", `{"choices":[{"message":{"content":"a"}}]}`, "a"},
		{"flat content", `{"choices":[{"content":"b"}]}`, "b"},
		{"output_text", `{"output_text":" c "}`, "c"},
		{"deep fallback", `{"data":{"text":"d"}}`, "d"},
		{"empty", `{"choices":[]}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload map[string]any
			if err := json.Unmarshal([]byte(tc.raw), &payload); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := ParseText(payload); got != tc.want {
				t.Fatalf("text = %q, want %q", got, tc.want)
			}
		})
	}
}
