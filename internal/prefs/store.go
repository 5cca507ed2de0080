package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Store persists each user's recognition model choice as a JSON object
// mapping user id to model name. Reads fall back to the default model.
type Store struct {
	path         string
	defaultModel string
	logger       *slog.Logger

	mu     sync.Mutex
	models map[string]string
	loaded bool
}

// NewStore creates a preference store backed by a JSON file
func NewStore(path, defaultModel string, logger *slog.Logger) *Store {
	return &Store{
		path:         path,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Get returns the user's preferred model, or the default when the user has
// never made a choice or the store is unreadable
func (s *Store) Get(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()

	if model, ok := s.models[key(userID)]; ok && model != "" {
		return model
	}
	return s.defaultModel
}

// Set records the user's model choice and persists the whole mapping
func (s *Store) Set(userID int64, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoaded()
	s.models[key(userID)] = model

	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist user preferences: %w", err)
	}

	return nil
}

// DefaultModel returns the model used when a user has no stored preference
func (s *Store) DefaultModel() string {
	return s.defaultModel
}

// ensureLoaded reads the file once; callers hold the mutex
func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.models = make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read user preferences, starting empty",
				slog.String("path", s.path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if err := json.Unmarshal(data, &s.models); err != nil {
		s.logger.Warn("Malformed user preferences file, starting empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.models = make(map[string]string)
	}
}

// persist writes the mapping via temp file and rename; callers hold the mutex
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	data, err := json.MarshalIndent(s.models, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".user_models-*")
	if err != nil {
		return fmt.Errorf("failed to create temp preferences file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp preferences file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp preferences file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}

	return nil
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
