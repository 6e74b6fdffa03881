package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hession/mentorjournal/internal/config"
)

type note struct {
	Version string            `json:"version"`
	Entries map[string]string `json:"entries"`
}

func (n *note) Validate() error {
	if n.Version != "1" {
		return fmt.Errorf("version %q, want \"1\"", n.Version)
	}
	for k, v := range n.Entries {
		if v == "" {
			return fmt.Errorf("entry %s is empty", k)
		}
	}
	return nil
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	file, err := NewFileBackend(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlite.Close() })

	b := map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   file,
		"sqlite": sqlite,
		"cached": NewCachedBackend(NewMemoryBackend(), time.Minute),
	}

	if url := os.Getenv("MENTORJOURNAL_TEST_REDIS_URL"); url != "" {
		redis, err := NewRedisBackend(context.Background(), url)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { redis.Close() })
		b["redis"] = redis
	}
	return b
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend, nil)

			in := &note{Version: "1", Entries: map[string]string{"2024-01-01": "ran 5k"}}
			if err := store.Set(ctx, "note", "journaling", in); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			var out note
			found, err := store.Get(ctx, "note", "journaling", &out)
			if err != nil || !found {
				t.Fatalf("Get = %v, %v", found, err)
			}
			if diff := cmp.Diff(in, &out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			// Overwrite wins
			in.Entries["2024-01-02"] = "rested"
			if err := store.Set(ctx, "note", "journaling", in); err != nil {
				t.Fatal(err)
			}
			var again note
			if _, err := store.Get(ctx, "note", "journaling", &again); err != nil {
				t.Fatal(err)
			}
			if len(again.Entries) != 2 {
				t.Errorf("Expected overwritten record, got %+v", again)
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)

	var out note
	found, err := store.Get(context.Background(), "note", "nobody", &out)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if found {
		t.Error("Expected not found")
	}
}

func TestStore_ListKeys(t *testing.T) {
	ctx := context.Background()
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(backend, nil)
			for _, key := range []string{"2024-01-03", "2024-01-01", "2024-01-02"} {
				if err := store.Set(ctx, "chatState", key, &note{Version: "1"}); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.Set(ctx, "mentorState", "social", &note{Version: "1"}); err != nil {
				t.Fatal(err)
			}

			keys, err := store.ListKeys(ctx, "chatState")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"2024-01-01", "2024-01-02", "2024-01-03"}, keys); diff != "" {
				t.Errorf("keys mismatch (-want +got):\n%s", diff)
			}

			empty, err := store.ListKeys(ctx, "unknownType")
			if err != nil {
				t.Fatal(err)
			}
			if len(empty) != 0 {
				t.Errorf("Expected no keys, got %v", empty)
			}
		})
	}
}

func TestStore_SetRejectsInvalidRecord(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)

	err := store.Set(context.Background(), "note", "k", &note{Version: "2"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("Expected ErrInvalidRecord, got %v", err)
	}
	var kvErr *Error
	if !errors.As(err, &kvErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if kvErr.Op != "set" || kvErr.Type != "note" || kvErr.Key != "k" {
		t.Errorf("Unexpected error fields: %+v", kvErr)
	}
}

func TestStore_GetFailsLoudly(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown field", `{"version":"1","entries":{},"extra":true}`},
		{"wrong version", `{"version":"0","entries":{}}`},
		{"empty entry", `{"version":"1","entries":{"2024-01-01":""}}`},
		{"not json", `version: 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			if err := backend.Write(ctx, "note", "k", []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			store := NewStore(backend, nil)
			var out note
			if _, err := store.Get(ctx, "note", "k", &out); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestStore_RejectsBadNames(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil)
	ctx := context.Background()

	for _, tc := range []struct{ typ, key string }{
		{"", "k"},
		{"note", ""},
		{"note", "../../etc/passwd"},
		{"note", "a/b"},
		{"my_type", "k"},
	} {
		if err := store.Set(ctx, tc.typ, tc.key, &note{Version: "1"}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q, %q): expected ErrInvalidKey, got %v", tc.typ, tc.key, err)
		}
	}
}

func TestFileBackend_Layout(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(backend, nil)
	if err := store.Set(context.Background(), "mentorState", "physical-health", &note{Version: "1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "mentorState_physical-health.json")); err != nil {
		t.Errorf("Expected <type>_<key>.json file: %v", err)
	}

	// Stray files are not keys
	os.WriteFile(filepath.Join(dir, "mentorState_notes.txt"), []byte("x"), 0644)
	keys, err := store.ListKeys(context.Background(), "mentorState")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"physical-health"}, keys); diff != "" {
		t.Errorf("keys mismatch:\n%s", diff)
	}
}

func TestCachedBackend_ServesFromCache(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	cached := NewCachedBackend(inner, time.Minute)

	if err := cached.Write(ctx, "note", "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	// Bypass the cache
	inner.Write(ctx, "note", "k", []byte("v2"))

	got, err := cached.Read(ctx, "note", "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Errorf("Expected cached v1, got %s", got)
	}

	if _, err := cached.Read(ctx, "note", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig().Storage
	cfg.DataDir = t.TempDir()

	store, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.backend.(*CachedBackend); !ok {
		t.Errorf("Expected cached backend, got %T", store.backend)
	}

	cfg.Backend = config.BackendMemory
	cfg.CacheTTLSeconds = 0
	store, err = Open(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.backend.(*MemoryBackend); !ok {
		t.Errorf("Expected memory backend, got %T", store.backend)
	}

	cfg.Backend = "tape"
	if _, err := Open(ctx, cfg, nil); err == nil {
		t.Error("Expected error for unsupported backend")
	}
}
