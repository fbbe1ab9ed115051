package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hookforge/internal/domain"
)

type fakeLister struct {
	events []domain.JobEvent
}

func (f *fakeLister) ListEvents(ctx context.Context, id string, after int64) ([]domain.JobEvent, error) {
	out := make([]domain.JobEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.JobID == id && ev.ID > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

// readStream collects SSE lines until an end event or maxLines.
func readStream(t *testing.T, url string, maxLines int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		if line == "event: end" || len(lines) >= maxLines {
			// One more read for the end event's data line.
			if scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			break
		}
	}
	return lines
}

func TestHandlerReplaysHistoryAndEnds(t *testing.T) {
	lister := &fakeLister{events: []domain.JobEvent{
		{ID: 1, JobID: "job1", Status: domain.StatusQueued, Message: "job accepted"},
		{ID: 2, JobID: "job1", Status: domain.StatusPreprocessing, Message: "pipeline started"},
		{ID: 3, JobID: "job1", Status: domain.StatusFailed, Message: "asr: boom"},
	}}
	b := NewBroadcaster(lister, zerolog.Nop())
	defer b.Close()

	ts := httptest.NewServer(b.Handler("job1"))
	defer ts.Close()

	lines := readStream(t, ts.URL, 64)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"id: 1", "id: 2", "id: 3", "job accepted", "pipeline started", "asr: boom", "event: end"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("stream missing %q:\n%s", want, joined)
		}
	}
	if strings.Index(joined, "job accepted") > strings.Index(joined, "asr: boom") {
		t.Fatalf("events out of order:\n%s", joined)
	}
}

func TestHandlerResumesAfterID(t *testing.T) {
	lister := &fakeLister{events: []domain.JobEvent{
		{ID: 1, JobID: "job1", Status: domain.StatusQueued, Message: "job accepted"},
		{ID: 2, JobID: "job1", Status: domain.StatusPreprocessing, Message: "pipeline started"},
		{ID: 3, JobID: "job1", Status: domain.StatusCompleted, Message: "final video assembled"},
	}}
	b := NewBroadcaster(lister, zerolog.Nop())
	defer b.Close()

	ts := httptest.NewServer(b.Handler("job1"))
	defer ts.Close()

	lines := readStream(t, ts.URL+"?after_id=2", 64)
	joined := strings.Join(lines, "\n")
	if strings.Contains(joined, "job accepted") || strings.Contains(joined, "pipeline started") {
		t.Fatalf("replayed already-seen events:\n%s", joined)
	}
	if !strings.Contains(joined, "final video assembled") || !strings.Contains(joined, "event: end") {
		t.Fatalf("stream missing resumed tail:\n%s", joined)
	}
}

func TestPublishReachesLiveSubscriber(t *testing.T) {
	lister := &fakeLister{}
	b := NewBroadcaster(lister, zerolog.Nop())
	defer b.Close()

	ts := httptest.NewServer(b.Handler("job2"))
	defer ts.Close()

	got := make(chan []string, 1)
	go func() {
		got <- readStream(t, ts.URL, 8)
	}()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(100 * time.Millisecond)
	b.Publish(domain.JobEvent{ID: 7, JobID: "job2", Status: domain.StatusCanceled, Message: "canceled"})

	select {
	case lines := <-got:
		joined := strings.Join(lines, "\n")
		for _, want := range []string{"id: 7", "canceled", "event: end"} {
			if !strings.Contains(joined, want) {
				t.Fatalf("stream missing %q:\n%s", want, joined)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no events received")
	}
}
