package storage

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, JobKey("j1", "transcript_raw.txt"), []byte("hello"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "jobs/j1/transcript_raw.txt" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
	if !store.Exists(key) {
		t.Fatal("exists = false, want true")
	}
}

func TestWriteFromStreams(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	payload := bytes.Repeat([]byte("x"), 1<<16)
	key, err := store.WriteFrom(context.Background(), "jobs/j1/source_video.mp4", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("write from: %v", err)
	}
	data, err := store.Read(context.Background(), key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("payload mismatch, got %d bytes", len(data))
	}
}

func TestCopyFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Write(ctx, "jobs/a/hook_script.json", []byte(`{"hook_title":"t"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst, err := store.CopyFile(ctx, "jobs/a/hook_script.json", "jobs/b/hook_script.json")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := store.Read(ctx, dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != `{"hook_title":"t"}` {
		t.Fatalf("copy content = %q", data)
	}
}

func TestRemoveAllClearsJobDir(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Write(ctx, "jobs/a/one.txt", []byte("1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Write(ctx, "jobs/a/two.txt", []byte("2")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.RemoveAll("jobs/a"); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if store.Exists("jobs/a/one.txt") || store.Exists("jobs/a/two.txt") {
		t.Fatal("files survived RemoveAll")
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, key := range []string{"", "..", "../escape", "jobs/../../etc/passwd"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q accepted, want error", key)
		}
	}

	// Leading slashes and dot segments are cleaned, not rejected.
	key, err := store.Write(context.Background(), "/jobs/./a/file.txt", []byte("x"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.HasPrefix(key, "/") {
		t.Fatalf("key not relative: %q", key)
	}
}
