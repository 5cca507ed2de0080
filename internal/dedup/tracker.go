package dedup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Tracker filters already-seen update ids using a persisted high-water mark.
// The check is a monotonic gate, not a set membership test: an older id
// redelivered after a newer one has been recorded stays rejected.
type Tracker struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	lastID   int64
	hasState bool

	// Statistics
	accepted   uint64
	duplicates uint64
}

// Stats represents deduplication counters for monitoring
type Stats struct {
	LastUpdateID int64  `json:"last_update_id"`
	Accepted     uint64 `json:"accepted"`
	Duplicates   uint64 `json:"duplicates"`
}

// NewTracker creates a tracker backed by a plain integer file.
// A missing or unreadable state file is treated as "no prior state".
func NewTracker(path string, logger *slog.Logger) *Tracker {
	t := &Tracker{
		path:   path,
		logger: logger,
	}

	t.lastID, t.hasState = t.load()
	if t.hasState {
		logger.Info("Loaded update deduplication state",
			slog.String("path", path),
			slog.Int64("last_update_id", t.lastID),
		)
	}

	return t
}

// ShouldProcess reports whether the update id is new and records it as the
// high-water mark when it is. Persistence failure is non-fatal: the id is
// still accepted optimistically.
func (t *Tracker) ShouldProcess(updateID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasState && updateID <= t.lastID {
		t.duplicates++
		t.logger.Info("Duplicate update ignored",
			slog.Int64("update_id", updateID),
			slog.Int64("last_update_id", t.lastID),
		)
		return false
	}

	t.lastID = updateID
	t.hasState = true
	t.accepted++

	if err := t.persist(updateID); err != nil {
		t.logger.Error("Failed to persist update id, continuing without durable mark",
			slog.Int64("update_id", updateID),
			slog.String("error", err.Error()),
		)
	}

	return true
}

// GetStats returns current deduplication counters
func (t *Tracker) GetStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		LastUpdateID: t.lastID,
		Accepted:     t.accepted,
		Duplicates:   t.duplicates,
	}
}

// load reads the persisted high-water mark from disk
func (t *Tracker) load() (int64, bool) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("Failed to read deduplication state, assuming no prior state",
				slog.String("path", t.path),
				slog.String("error", err.Error()),
			)
		}
		return 0, false
	}

	id, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		t.logger.Warn("Malformed deduplication state, assuming no prior state",
			slog.String("path", t.path),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	return id, true
}

// persist writes the mark via a temp file and rename so a concurrent read
// never observes a partial write
func (t *Tracker) persist(updateID int64) error {
	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".update_id-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	if _, err := tmp.WriteString(strconv.FormatInt(updateID, 10)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), t.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
