package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_AtomicWriteAndBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epochs.md")

	if err := os.WriteFile(path, []byte("version one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStore(path, false)
	err := fs.Atomically(func(cur []byte) ([]byte, bool, error) {
		if string(cur) != "version one\n" {
			t.Errorf("mutate saw %q", cur)
		}
		return []byte("version two\n"), true, nil
	})
	if err != nil {
		t.Fatalf("Atomically failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "version two\n" {
		t.Errorf("current content: %q", content)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(bak) != "version one\n" {
		t.Errorf("backup content: %q", bak)
	}
}

func TestFileStore_MutateErrorLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epochs.md")
	if err := os.WriteFile(path, []byte("original\n"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := NewFileStore(path, false)
	boom := errors.New("verification failed")
	err := fs.Atomically(func(cur []byte) ([]byte, bool, error) {
		return []byte("half-written"), false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "original\n" {
		t.Errorf("file changed on aborted mutation: %q", content)
	}
}

func TestFileStore_NoWriteSkipsPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "epochs.md")
	if err := os.WriteFile(path, []byte("stable\n"), 0644); err != nil {
		t.Fatal(err)
	}
	before, _ := os.Stat(path)

	fs := NewFileStore(path, false)
	if err := fs.Atomically(func(cur []byte) ([]byte, bool, error) {
		return nil, false, nil
	}); err != nil {
		t.Fatal(err)
	}

	after, _ := os.Stat(path)
	if before.ModTime() != after.ModTime() {
		t.Error("no-op mutation should not rewrite the file")
	}
	if _, err := os.Stat(path + ".bak"); !errors.Is(err, os.ErrNotExist) {
		t.Error("no-op mutation should not create a backup")
	}
}

func TestFileStore_AllowMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "completed.md")

	fs := NewFileStore(path, true)
	content, err := fs.Load()
	if err != nil {
		t.Fatalf("Load of missing file should succeed: %v", err)
	}
	if content != nil {
		t.Errorf("missing file should read empty, got %q", content)
	}

	if err := fs.Atomically(func(cur []byte) ([]byte, bool, error) {
		return append(cur, []byte("# Completed\n")...), true, nil
	}); err != nil {
		t.Fatalf("first write should create the file: %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "# Completed\n" {
		t.Errorf("content: %q", got)
	}
}

func TestFileStore_MissingWithoutAllowMissing(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "absent.md"), false)
	if _, err := fs.Load(); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestMemStore(t *testing.T) {
	ms := NewMemStore([]byte("a"))
	if err := ms.Atomically(func(cur []byte) ([]byte, bool, error) {
		return append(cur, 'b'), true, nil
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := ms.Load()
	if string(got) != "ab" {
		t.Errorf("got %q", got)
	}

	// Mutating the returned slice must not leak into the store.
	got[0] = 'z'
	again, _ := ms.Load()
	if string(again) != "ab" {
		t.Errorf("snapshot aliased store memory: %q", again)
	}
}

func TestFileLock_TryLockConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.lock")

	a := NewFileLock(path)
	if err := a.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	b := NewFileLock(path)
	if err := b.TryLock(); err == nil {
		b.Unlock()
		t.Fatal("second TryLock should fail while held")
	}
	if err := a.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := b.TryLock(); err != nil {
		t.Fatalf("TryLock after release failed: %v", err)
	}
	b.Unlock()
}
