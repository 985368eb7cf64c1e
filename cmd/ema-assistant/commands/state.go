package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
)

// state is what the client remembers between runs.
type state struct {
	Volume int `yaml:"volume,omitempty"`
}

// stateStore persists state to a YAML file.
type stateStore struct {
	path string

	mu    sync.Mutex
	state state
}

func loadState(path string) (*stateStore, error) {
	store := &stateStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &store.state); err != nil {
		return nil, fmt.Errorf("failed to parse state %s: %w", path, err)
	}
	return store, nil
}

// Volume returns the saved volume, or 0 when none was saved.
func (s *stateStore) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Volume
}

func (s *stateStore) SetVolume(percentage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Volume = percentage
	return s.saveLocked()
}

func (s *stateStore) saveLocked() error {
	data, err := yaml.Marshal(s.state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return nil
}
