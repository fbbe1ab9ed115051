package retention

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hookforge/internal/domain"
	"hookforge/internal/infra"
	"hookforge/internal/registry"
	"hookforge/internal/storage"
)

type fakeActive struct {
	held map[string]bool
}

func (f *fakeActive) IsActive(jobID string) bool { return f.held[jobID] }

func newTestSweeper(t *testing.T) (*Sweeper, *registry.Registry, *storage.FileStore, *fakeActive) {
	t.Helper()
	db, err := infra.OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := registry.New(infra.NewSQLRunner(db, zerolog.Nop()), zerolog.Nop())
	if err := reg.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	active := &fakeActive{held: make(map[string]bool)}
	return NewSweeper(reg, store, active, zerolog.Nop()), reg, store, active
}

func seedJob(t *testing.T, reg *registry.Registry, store *storage.FileStore, status domain.JobStatus) string {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()
	if _, err := store.Write(ctx, storage.JobKey(id, "source_video.mp4"), []byte("src")); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	job := &domain.Job{ID: id, ProjectName: "demo", InputFilename: "in.mp4", SourcePath: storage.JobKey(id, "source_video.mp4")}
	if err := reg.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if status != domain.StatusQueued {
		if err := reg.SetStatus(ctx, id, status, "test"); err != nil {
			t.Fatalf("set status: %v", err)
		}
	}
	// Creation timestamps must strictly order the jobs.
	time.Sleep(2 * time.Millisecond)
	return id
}

func TestCleanupKeepsNewestAndSkipsActive(t *testing.T) {
	sweeper, reg, store, active := newTestSweeper(t)
	ctx := context.Background()

	oldest := seedJob(t, reg, store, domain.StatusCompleted)
	failed := seedJob(t, reg, store, domain.StatusFailed)
	running := seedJob(t, reg, store, domain.StatusASR)
	newer := seedJob(t, reg, store, domain.StatusCompleted)
	newest := seedJob(t, reg, store, domain.StatusCompleted)
	active.held[running] = true

	removed, err := sweeper.Cleanup(ctx, 2)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	gone := map[string]bool{}
	for _, id := range removed {
		gone[id] = true
	}
	if !gone[oldest] || !gone[failed] {
		t.Fatalf("removed = %v, want oldest and failed", removed)
	}
	if gone[running] || gone[newer] || gone[newest] {
		t.Fatalf("removed protected jobs: %v", removed)
	}

	if _, err := reg.GetJob(ctx, oldest); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("deleted job still readable: %v", err)
	}
	if store.Exists(storage.JobKey(oldest, "source_video.mp4")) {
		t.Fatal("deleted job's artifacts still on disk")
	}
	if !store.Exists(storage.JobKey(running, "source_video.mp4")) {
		t.Fatal("active job's artifacts removed")
	}
}

func TestCleanupNoopWhenUnderLimit(t *testing.T) {
	sweeper, reg, store, _ := newTestSweeper(t)

	seedJob(t, reg, store, domain.StatusCompleted)
	seedJob(t, reg, store, domain.StatusCompleted)

	removed, err := sweeper.Cleanup(context.Background(), 5)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("removed = %v, want none", removed)
	}
}

func TestDeleteRefusesActiveJob(t *testing.T) {
	sweeper, reg, store, active := newTestSweeper(t)
	ctx := context.Background()

	id := seedJob(t, reg, store, domain.StatusVideoPolling)
	active.held[id] = true

	if err := sweeper.Delete(ctx, id, false); !errors.Is(err, domain.ErrJobActive) {
		t.Fatalf("err = %v, want ErrJobActive", err)
	}
	if err := sweeper.Delete(ctx, id, true); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if _, err := reg.GetJob(ctx, id); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("job still readable after forced delete: %v", err)
	}
	if store.Exists(storage.JobKey(id, "source_video.mp4")) {
		t.Fatal("artifacts still on disk after forced delete")
	}
}

func TestDeleteMissingJob(t *testing.T) {
	sweeper, _, _, _ := newTestSweeper(t)
	if err := sweeper.Delete(context.Background(), "nope", false); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}
