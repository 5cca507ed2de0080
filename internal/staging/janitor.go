package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor periodically deletes staging files older than the retention
// threshold. It is the backstop for files whose owning job never ran its
// own release step; the retention must exceed the worst-case job duration
// so in-flight files are never reaped.
type Janitor struct {
	dir       *Dir
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	onDelete  func()
}

// NewJanitor creates a janitor over the staging directory.
// onDelete is invoked once per removed file and may be nil.
func NewJanitor(dir *Dir, interval, retention time.Duration, logger *slog.Logger, onDelete func()) *Janitor {
	return &Janitor{
		dir:       dir,
		interval:  interval,
		retention: retention,
		logger:    logger,
		onDelete:  onDelete,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
// One sweep runs immediately on start.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("Staging janitor started",
		slog.String("dir", j.dir.Path()),
		slog.Duration("interval", j.interval),
		slog.Duration("retention", j.retention),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Staging janitor stopping")
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep deletes every staging file whose modification time is older than
// the retention threshold. Unreadable or already-removed entries are
// skipped, not errors.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.dir.Path())
	if err != nil {
		j.logger.Warn("Failed to read staging directory",
			slog.String("dir", j.dir.Path()),
			slog.String("error", err.Error()),
		)
		return
	}

	cutoff := time.Now().Add(-j.retention)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(j.dir.Path(), entry.Name())

		info, err := entry.Info()
		if err != nil {
			j.logger.Warn("Could not stat staging file, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				j.logger.Warn("Could not delete stale staging file",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		j.logger.Info("Deleted stale staging file",
			slog.String("path", path),
			slog.Time("mod_time", info.ModTime()),
		)

		if j.onDelete != nil {
			j.onDelete()
		}
	}
}
