package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores objects as plain files in a single flat directory.
type Local struct {
	root string
}

// NewLocal returns a Local backend rooted at dir. The directory is expected
// to exist; operations report ErrNotFound when it does not.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Save writes content to {root}/{key}, overwriting any existing file.
func (l *Local) Save(ctx context.Context, key string, content []byte) (string, error) {
	if err := os.WriteFile(l.path(key), content, 0o644); err != nil {
		return "", backendErr("save "+key, err)
	}
	return key, nil
}

// Open opens the file stored under key.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("open "+key, err)
	}
	return f, nil
}

// Delete removes the file stored under key.
func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return backendErr("delete "+key, err)
	}
	return nil
}

// ResolveURL returns the object's path under the backend root.
func (l *Local) ResolveURL(key string) string {
	return l.path(key)
}

// List enumerates the root directory, skipping subdirectories and the
// sentinel entry, and stats each file for its size.
func (l *Local) List(ctx context.Context) (map[string]int64, error) {
	entries, err := os.ReadDir(l.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, backendErr("list", err)
	}

	objects := make(map[string]int64, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == SentinelKey {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, backendErr("stat "+entry.Name(), err)
		}
		objects[entry.Name()] = info.Size()
	}
	return objects, nil
}

// Count reports the number of stored files.
func (l *Local) Count(ctx context.Context) (int, error) {
	objects, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// TotalSize reports the summed size of all stored files.
func (l *Local) TotalSize(ctx context.Context) (int64, error) {
	objects, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, size := range objects {
		total += size
	}
	return total, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, key)
}
