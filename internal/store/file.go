package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileStore stores one document on the filesystem. With allowMissing set,
// a missing file reads as an empty document; the first write creates it.
type FileStore struct {
	path         string
	allowMissing bool
}

func NewFileStore(path string, allowMissing bool) *FileStore {
	return &FileStore{path: path, allowMissing: allowMissing}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() ([]byte, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if f.allowMissing && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return content, nil
}

func (f *FileStore) Atomically(mutate func([]byte) ([]byte, bool, error)) error {
	lock := NewFileLock(f.path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	current, err := f.Load()
	if err != nil {
		return err
	}
	updated, write, err := mutate(current)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}
	return atomicWriteFile(f.path, updated)
}
