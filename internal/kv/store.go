// Package kv stores typed, schema-validated records, one blob per
// (type, key) pair, on a pluggable backend.
package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hession/mentorjournal/internal/config"
)

// Record is a persisted value that can check its own schema
type Record interface {
	Validate() error
}

// Backend stores raw record bytes
type Backend interface {
	// Read returns ErrNotFound when nothing is stored under (typ, key)
	Read(ctx context.Context, typ, key string) ([]byte, error)
	Write(ctx context.Context, typ, key string, data []byte) error
	Keys(ctx context.Context, typ string) ([]string, error)
	Close() error
}

// Store validates records on the way in and out of a Backend.
// Concurrent writers of one record race; the last Set wins.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// NewStore creates a store over backend
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Open builds the backend selected by cfg, wrapped in a read cache when
// cfg.CacheTTLSeconds > 0
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	var backend Backend
	var err error

	switch strings.ToLower(cfg.Backend) {
	case config.BackendFile:
		backend, err = NewFileBackend(cfg.DataDir)
	case config.BackendSQLite:
		backend, err = NewSQLiteBackend(cfg.DBPath)
	case config.BackendRedis:
		backend, err = NewRedisBackend(ctx, cfg.RedisURL)
	case config.BackendMemory:
		backend = NewMemoryBackend()
	default:
		err = fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTLSeconds > 0 {
		backend = NewCachedBackend(backend, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}
	return NewStore(backend, logger), nil
}

// Get loads the record stored under (typ, key) into rec. It reports false
// when nothing is stored. Unknown fields and schema violations fail with
// ErrInvalidRecord.
func (s *Store) Get(ctx context.Context, typ, key string, rec Record) (bool, error) {
	if err := checkName(typ, key); err != nil {
		return false, newError("get", typ, key, err)
	}

	data, err := s.backend.Read(ctx, typ, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, newError("get", typ, key, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return false, invalid("get", typ, key, err)
	}
	if err := rec.Validate(); err != nil {
		return false, invalid("get", typ, key, err)
	}
	return true, nil
}

// Set validates rec and stores it under (typ, key)
func (s *Store) Set(ctx context.Context, typ, key string, rec Record) error {
	if err := checkName(typ, key); err != nil {
		return newError("set", typ, key, err)
	}
	if err := rec.Validate(); err != nil {
		return invalid("set", typ, key, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return newError("set", typ, key, err)
	}
	if err := s.backend.Write(ctx, typ, key, data); err != nil {
		return newError("set", typ, key, err)
	}
	s.logger.Debug("record saved", "type", typ, "key", key, "bytes", len(data))
	return nil
}

// ListKeys returns the keys stored for typ, sorted
func (s *Store) ListKeys(ctx context.Context, typ string) ([]string, error) {
	if err := checkName(typ, "_"); err != nil {
		return nil, newError("list", typ, "", err)
	}
	keys, err := s.backend.Keys(ctx, typ)
	if err != nil {
		return nil, newError("list", typ, "", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// checkName rejects names that would escape a file backend's directory or
// collide with the <type>_<key> layout
func checkName(typ, key string) error {
	if typ == "" || strings.ContainsAny(typ, `_/\.`) {
		return fmt.Errorf("%w: type %q", ErrInvalidKey, typ)
	}
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: key %q", ErrInvalidKey, key)
	}
	return nil
}
