package staging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir is the local ephemeral storage for in-progress audio files
type Dir struct {
	path   string
	logger *slog.Logger
}

// NewDir creates the staging directory if needed and returns a handle to it
func NewDir(path string, logger *slog.Logger) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", path, err)
	}

	return &Dir{path: path, logger: logger}, nil
}

// Path returns the staging directory path
func (d *Dir) Path() string {
	return d.path
}

// NewPath returns a unique path inside the staging directory. The random
// prefix prevents collisions between concurrent jobs downloading files with
// the same platform name.
func (d *Dir) NewPath(base string) string {
	name := filepath.Base(base)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "audio"
	}
	return filepath.Join(d.path, fmt.Sprintf("%s_%s", uuid.NewString(), name))
}

// Remove deletes a staging file. Deletion is idempotent: a file that is
// already gone is not an error.
func (d *Dir) Remove(path string) {
	if path == "" {
		return
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		d.logger.Warn("Failed to remove staging file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Debug("Removed staging file", slog.String("path", path))
}
