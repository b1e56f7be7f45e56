package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/fhasched/pkg/fha"
)

type recordingSetter struct {
	mu  sync.Mutex
	got []fha.Tunables
}

func (r *recordingSetter) SetTunables(t fha.Tunables) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
	return nil
}

func (r *recordingSetter) last() (fha.Tunables, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return fha.Tunables{}, 0
	}
	return r.got[len(r.got)-1], len(r.got)
}

func TestWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
scheduler:
  max_threads_per_file: 2
  max_reqs_per_thread: -1
`)
	setter := &recordingSetter{}

	w, err := NewWatcher(path, setter)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	got, n := setter.last()
	if n != 1 {
		t.Fatalf("Expected one SetTunables call, got %d", n)
	}
	if got.MaxThreadsPerFile != 2 || got.MaxReqsPerThread != 0 {
		t.Errorf("Unexpected tunables: %+v", got)
	}
}

func TestWatcher_ReloadKeepsTunablesOnBadFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
scheduler:
  bin_size: 3KB
`)
	setter := &recordingSetter{}

	w, err := NewWatcher(path, setter)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Reload(); err == nil {
		t.Fatal("Expected reload of invalid file to fail")
	}
	if _, n := setter.last(); n != 0 {
		t.Errorf("Expected no SetTunables call, got %d", n)
	}
	if reloads, failures := w.Counts(); reloads != 0 || failures != 1 {
		t.Errorf("Expected 0 reloads and 1 failure, got %d and %d", reloads, failures)
	}
}

func TestWatcher_RunPicksUpWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  bin_shift: 18\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	setter := &recordingSetter{}
	w, err := NewWatcher(path, setter)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.SetDelay(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Unrelated files in the directory are ignored.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644)
		if err := os.WriteFile(path, []byte("scheduler:\n  bin_shift: 12\n"), 0644); err != nil {
			t.Fatalf("Failed to rewrite config: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
		if got, n := setter.last(); n > 0 {
			if got.BinShift != 12 {
				t.Errorf("Expected bin_shift 12, got %d", got.BinShift)
			}
			break
		}
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, n := setter.last(); n == 0 {
		t.Fatal("Expected the watcher to apply the rewritten config")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", &recordingSetter{}); err == nil {
		t.Fatal("Expected error for empty path")
	}
}
