package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hookforge/internal/domain"
)

type fakeRunner struct {
	mu            sync.Mutex
	started       []string
	concurrent    int
	maxConcurrent int
	release       chan struct{}
	done          chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		release: make(chan struct{}, 16),
		done:    make(chan string, 16),
	}
}

func (f *fakeRunner) Run(ctx context.Context, jobID string) error {
	f.mu.Lock()
	f.started = append(f.started, jobID)
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	f.mu.Unlock()

	select {
	case <-f.release:
	case <-ctx.Done():
	}

	f.mu.Lock()
	f.concurrent--
	f.mu.Unlock()
	f.done <- jobID
	return nil
}

func (f *fakeRunner) startedJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func waitDone(t *testing.T, f *fakeRunner, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for len(ids) < n {
		select {
		case id := <-f.done:
			ids = append(ids, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d jobs", len(ids), n)
		}
	}
	return ids
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPoolBoundsParallelism(t *testing.T) {
	runner := newFakeRunner()
	pool, err := NewPool(runner, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if !pool.Enqueue(id) {
			t.Fatalf("enqueue %s rejected", id)
		}
	}
	for range ids {
		runner.release <- struct{}{}
	}
	waitDone(t, runner, len(ids))

	if runner.maxConcurrent > 2 {
		t.Fatalf("max concurrent = %d, want <= 2", runner.maxConcurrent)
	}
	if got := len(runner.startedJobs()); got != len(ids) {
		t.Fatalf("started = %d jobs, want %d", got, len(ids))
	}
}

// With a single worker, claim order is observable as start order.
func TestPoolStartsJobsInSubmissionOrder(t *testing.T) {
	runner := newFakeRunner()
	pool, err := NewPool(runner, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		if !pool.Enqueue(id) {
			t.Fatalf("enqueue %s rejected", id)
		}
	}
	for range ids {
		runner.release <- struct{}{}
	}
	waitDone(t, runner, len(ids))

	started := runner.startedJobs()
	for i, id := range ids {
		if started[i] != id {
			t.Fatalf("start order = %v, want %v", started, ids)
		}
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	runner := newFakeRunner()
	pool, err := NewPool(runner, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	if !pool.Enqueue("a") {
		t.Fatal("first enqueue rejected")
	}
	waitUntil(t, func() bool { return len(runner.startedJobs()) == 1 })

	if pool.Enqueue("a") {
		t.Fatal("running job enqueued twice")
	}
	if !pool.Enqueue("b") {
		t.Fatal("second job rejected")
	}
	if pool.Enqueue("b") {
		t.Fatal("waiting job enqueued twice")
	}
	if !pool.IsActive("a") || !pool.IsActive("b") {
		t.Fatal("active jobs not reported")
	}
	if pool.IsActive("c") {
		t.Fatal("unknown job reported active")
	}

	runner.release <- struct{}{}
	runner.release <- struct{}{}
	waitDone(t, runner, 2)
	waitUntil(t, func() bool { return !pool.IsActive("a") && !pool.IsActive("b") })

	if !pool.Enqueue("a") {
		t.Fatal("finished job could not be re-enqueued")
	}
	runner.release <- struct{}{}
	waitDone(t, runner, 1)
}

type fakeLister struct {
	jobs []*domain.Job
}

func (f *fakeLister) ListUnfinishedJobs(ctx context.Context) ([]*domain.Job, error) {
	return f.jobs, nil
}

func TestRecoverEnqueuesUnfinished(t *testing.T) {
	runner := newFakeRunner()
	pool, err := NewPool(runner, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	if !pool.Enqueue("a") {
		t.Fatal("enqueue rejected")
	}
	waitUntil(t, func() bool { return len(runner.startedJobs()) == 1 })

	lister := &fakeLister{jobs: []*domain.Job{
		{ID: "a", Status: domain.StatusASR},
		{ID: "b", Status: domain.StatusQueued},
		{ID: "c", Status: domain.StatusVideoPolling},
	}}
	n, err := pool.Recover(context.Background(), lister)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 2 {
		t.Fatalf("recovered = %d, want 2 (a already held)", n)
	}

	for i := 0; i < 3; i++ {
		runner.release <- struct{}{}
	}
	waitDone(t, runner, 3)
}
