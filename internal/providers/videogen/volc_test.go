package videogen

import (
	"bytes"
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

func testCfg() config.VideoConfig {
	cfg := config.Default().Video
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

func TestSubmitFirstPayloadAccepted(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := body["width"]; !ok {
			t.Fatalf("first payload should carry width/height: %v", body)
		}
		return jsonResponse(200, `{"id":"task-1"}`), nil
	})

	taskID, err := client.Submit(context.Background(), testCfg(), "a prompt", 5, 1080, 1920)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if taskID != "task-1" {
		t.Fatalf("task id = %q", taskID)
	}
}

func TestSubmitFallsThroughPayloadShapes(t *testing.T) {
	var calls int
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(422, `{"error":"unknown field"}`), nil
		}
		return jsonResponse(200, `{"task_id":"task-2"}`), nil
	})

	taskID, err := client.Submit(context.Background(), testCfg(), "p", 5, 1080, 1920)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if taskID != "task-2" || calls != 3 {
		t.Fatalf("task id = %q after %d calls", taskID, calls)
	}
}

func TestSubmitNonRetryableStatusStops(t *testing.T) {
	var calls int
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(401, `{"error":"bad key"}`), nil
	})

	_, err := client.Submit(context.Background(), testCfg(), "p", 5, 1080, 1920)
	if err == nil || calls != 1 {
		t.Fatalf("err = %v calls = %d, want single permanent failure", err, calls)
	}
	if domain.Classify(err) != domain.ClassPermanent {
		t.Fatalf("class = %v, want permanent", domain.Classify(err))
	}
}

func TestSubmitAllShapesRejected(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(400, `{"error":"nope"}`), nil
	})

	_, err := client.Submit(context.Background(), testCfg(), "p", 5, 1080, 1920)
	if err == nil || !strings.Contains(err.Error(), "payload fallbacks") {
		t.Fatalf("err = %v, want fallback exhaustion", err)
	}
}

func TestPollStates(t *testing.T) {
	cases := []struct {
		name string
		body string
		want TaskState
	}{
		{"pending", `{"status":"running"}`, StatePending},
		{"ready", `{"status":"succeeded","content":{"video_url":"https://v/x.mp4"}}`, StateReady},
		{"failed", `{"status":"failed"}`, StateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClientWith(func(req *http.Request) (*http.Response, error) {
				if !strings.HasSuffix(req.URL.Path, "/tasks/task-9") {
					t.Fatalf("path = %s", req.URL.Path)
				}
				return jsonResponse(200, tc.body), nil
			})
			res, err := client.Poll(context.Background(), testCfg(), "task-9")
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if res.State != tc.want {
				t.Fatalf("state = %v, want %v", res.State, tc.want)
			}
			if tc.want == StateReady && res.VideoURL != "https://v/x.mp4" {
				t.Fatalf("video url = %q", res.VideoURL)
			}
		})
	}
}

func TestPollReadyWithoutURLIsPermanent(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"status":"succeeded"}`), nil
	})
	_, err := client.Poll(context.Background(), testCfg(), "t")
	if domain.Classify(err) != domain.ClassPermanent {
		t.Fatalf("class = %v, want permanent (err=%v)", domain.Classify(err), err)
	}
}

func TestDownloadStreams(t *testing.T) {
	client := newClientWith(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader("video-bytes")),
		}, nil
	})

	var buf bytes.Buffer
	if err := client.Download(context.Background(), "https://v/x.mp4", &buf); err != nil {
		t.Fatalf("download: %v", err)
	}
	if buf.String() != "video-bytes" {
		t.Fatalf("payload = %q", buf.String())
	}
}
