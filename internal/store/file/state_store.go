// Package file implements the position state store as a JSON file on disk,
// for deployments without Redis.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alanyoungcy/breakoutbot/internal/domain"
)

// StateStore persists the position record as a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// corrupted record.
type StateStore struct {
	path string
}

// NewStateStore creates a StateStore at the given path.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load reads the stored position. A missing or empty file means FLAT.
func (s *StateStore) Load(_ context.Context) (domain.Position, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Position{}, nil
		}
		return domain.Position{}, fmt.Errorf("file: read state %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return domain.Position{}, nil
	}

	var pos domain.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return domain.Position{}, fmt.Errorf("file: decode state %s: %w", s.path, err)
	}
	return pos, nil
}

// Save writes the position record atomically.
func (s *StateStore) Save(_ context.Context, pos domain.Position) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("file: create state dir: %w", err)
	}

	data, err := json.MarshalIndent(pos, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("file: replace state: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.StateStore = (*StateStore)(nil)
