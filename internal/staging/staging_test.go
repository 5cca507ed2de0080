package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewDirCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging")

	dir, err := NewDir(path, testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	info, err := os.Stat(dir.Path())
	if err != nil {
		t.Fatalf("Expected staging directory to exist: %v", err)
	}

	if !info.IsDir() {
		t.Error("Expected staging path to be a directory")
	}
}

func TestNewPathIsUnique(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := dir.NewPath("voice.oga")
		if seen[p] {
			t.Fatalf("Duplicate staging path generated: %s", p)
		}
		seen[p] = true

		if filepath.Dir(p) != dir.Path() {
			t.Errorf("Expected path inside staging dir, got %s", p)
		}
	}
}

func TestNewPathStripsDirectoryComponents(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	p := dir.NewPath("voice/file_12.oga")
	if filepath.Dir(p) != dir.Path() {
		t.Errorf("Expected platform path components stripped, got %s", p)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	path := dir.NewPath("voice.oga")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatalf("Failed to write staging file: %v", err)
	}

	dir.Remove(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected staging file to be removed")
	}

	// Second removal of the same path must be a no-op
	dir.Remove(path)
	dir.Remove("")
}

func TestJanitorDeletesOnlyStaleFiles(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	stale := filepath.Join(dir.Path(), "stale.oga")
	fresh := filepath.Join(dir.Path(), "fresh.oga")

	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatalf("Failed to write stale file: %v", err)
	}
	if err := os.WriteFile(fresh, []byte("new"), 0644); err != nil {
		t.Fatalf("Failed to write fresh file: %v", err)
	}

	// Age the stale file past the retention threshold
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Failed to age stale file: %v", err)
	}

	deleted := 0
	janitor := NewJanitor(dir, time.Minute, time.Hour, testLogger(), func() { deleted++ })
	janitor.Sweep()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected stale file to be deleted")
	}

	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("Expected fresh file to survive the sweep: %v", err)
	}

	if deleted != 1 {
		t.Errorf("Expected 1 deletion callback, got %d", deleted)
	}
}

func TestJanitorSkipsSubdirectories(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	sub := filepath.Join(dir.Path(), "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(sub, old, old); err != nil {
		t.Fatalf("Failed to age subdirectory: %v", err)
	}

	janitor := NewJanitor(dir, time.Minute, time.Hour, testLogger(), nil)
	janitor.Sweep()

	if _, err := os.Stat(sub); err != nil {
		t.Errorf("Expected subdirectory to survive the sweep: %v", err)
	}
}

func TestJanitorRunStopsOnContextCancel(t *testing.T) {
	dir, err := NewDir(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewDir failed: %v", err)
	}

	janitor := NewJanitor(dir, 10*time.Millisecond, time.Hour, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		janitor.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Expected janitor to stop after context cancellation")
	}
}
