package kv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each record as <dir>/<type>_<key>.json
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(typ, key string) string {
	return filepath.Join(b.dir, typ+"_"+key+".json")
}

// Read implements Backend
func (b *FileBackend) Read(_ context.Context, typ, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(typ, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write implements Backend. The file is replaced atomically.
func (b *FileBackend) Write(_ context.Context, typ, key string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, "."+typ+"_*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.path(typ, key))
}

// Keys implements Backend
func (b *FileBackend) Keys(_ context.Context, typ string) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	prefix := typ + "_"
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
	}
	return keys, nil
}

// Close implements Backend
func (b *FileBackend) Close() error { return nil }
