// Parley - Realtime Chat and Notification Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package asset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(config.AssetsConfig{Root: t.TempDir(), BaseURL: "https://cdn.example.com/assets/"})
	if err != nil {
		t.Fatalf("NewFileStorage() error = %v", err)
	}
	return s
}

func TestFileStorage_CreateAndDelete(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	ctx := context.Background()

	key, size, err := s.CreateAsset(ctx, "alice", "image/png", strings.NewReader("pngdata"))
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if size != 7 || !strings.HasPrefix(key, "alice/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %s size = %d", key, size)
	}
	if url := s.GetAssetURL(key); url != "https://cdn.example.com/assets/"+key {
		t.Errorf("GetAssetURL() = %s", url)
	}

	full := filepath.Join(s.root, filepath.FromSlash(key))
	if _, err := os.Stat(full); err != nil {
		t.Fatalf("file missing: %v", err)
	}

	if err := s.DeleteFilesFromStorage(ctx, []string{key, "alice/missing.png"}); err != nil {
		t.Fatalf("DeleteFilesFromStorage() error = %v", err)
	}
	if _, err := os.Stat(full); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still present: %v", err)
	}
}

func TestFileStorage_RejectsEscapes(t *testing.T) {
	t.Parallel()

	s := newTestStorage(t)
	for _, key := range []string{"", "../etc/passwd", "a/../../b", "/abs"} {
		if _, err := s.resolve(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("resolve(%q) error = %v", key, err)
		}
	}
	if _, _, err := s.CreateAsset(context.Background(), "../x", "text/plain", strings.NewReader("x")); err == nil {
		t.Error("expected error for owner id with path separator")
	}
}

type recordingStorage struct {
	FileStorage
	mu      sync.Mutex
	deleted []string
	done    chan struct{}
}

func (r *recordingStorage) DeleteFilesFromStorage(_ context.Context, keys []string) error {
	r.mu.Lock()
	r.deleted = append(r.deleted, keys...)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestCleaner(t *testing.T) {
	t.Parallel()

	store := &recordingStorage{done: make(chan struct{}, 1)}
	c := NewCleaner(store, 4)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Serve(ctx) }()

	c.Enqueue([]string{"k1", "k2"})
	c.Enqueue(nil)

	select {
	case <-store.done:
	case <-time.After(2 * time.Second):
		t.Fatal("cleaner did not delete")
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.deleted) != 2 {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestCleaner_FullQueueDrops(t *testing.T) {
	t.Parallel()

	c := NewCleaner(&recordingStorage{}, 1)
	c.Enqueue([]string{"a"})
	c.Enqueue([]string{"b"})

	if len(c.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(c.queue))
	}
}
