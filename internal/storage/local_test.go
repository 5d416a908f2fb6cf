package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestLocalStorage_UploadDownload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()
	src := writeFile(t, "1 1500\n")

	objectPath := "runs/abc/outputfile.summary"
	etag, err := store.Upload(ctx, src, objectPath)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	sum := md5.Sum([]byte("1 1500\n"))
	if etag != hex.EncodeToString(sum[:]) {
		t.Errorf("unexpected etag %s", etag)
	}

	exists, err := store.Exists(ctx, objectPath)
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v, %v", exists, err)
	}

	dst := filepath.Join(t.TempDir(), "nested", "downloaded")
	if err := store.Download(ctx, objectPath, dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if string(got) != "1 1500\n" {
		t.Errorf("content mismatch: got %q", got)
	}

	if err := store.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, _ = store.Exists(ctx, objectPath)
	if exists {
		t.Error("expected object to be deleted")
	}
	// Deleting again is not an error.
	if err := store.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStorage_DownloadMissing(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	err := store.Download(context.Background(), "missing", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx := context.Background()
	src := writeFile(t, "x")

	for _, p := range []string{"runs/b/snapshot.sqlite.sz", "runs/a/outputfile.summary", "runs/a/snapshot.badger.sz", "other/file"} {
		if _, err := store.Upload(ctx, src, p); err != nil {
			t.Fatalf("Upload %s failed: %v", p, err)
		}
	}

	objects, err := store.ListObjects(ctx, "runs/a/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"runs/a/outputfile.summary", "runs/a/snapshot.badger.sz"}
	if len(objects) != len(want) {
		t.Fatalf("expected %v, got %v", want, objects)
	}
	for i := range want {
		if objects[i] != want[i] {
			t.Errorf("object %d: expected %s, got %s", i, want[i], objects[i])
		}
	}

	all, _ := store.ListObjects(ctx, "")
	if len(all) != 4 {
		t.Errorf("expected 4 objects, got %v", all)
	}
	none, _ := store.ListObjects(ctx, "nope/")
	if len(none) != 0 {
		t.Errorf("expected no objects, got %v", none)
	}
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	src := writeFile(t, "x")
	for _, p := range []string{"", "../outside", "/abs/path", "a/../../b"} {
		if _, err := store.Upload(context.Background(), src, p); err == nil {
			t.Errorf("expected error for object path %q", p)
		}
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	store, _ := NewLocalStorage(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Upload(ctx, writeFile(t, "x"), "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
