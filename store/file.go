package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the state in a single YAML document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type document struct {
	HomeSet bool         `yaml:"homeTimezoneSet"`
	Cards   []cardRecord `yaml:"userTimezonesConfig"`
}

// NewFileStore returns a store backed by the YAML file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string { return s.path }

// Load reads the state. A missing file is an empty state. A file that does
// not parse is also an empty state, with the parse error in Discarded.
func (s *FileStore) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, &PersistenceError{Op: "load", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, &PersistenceError{Op: "load", Err: err}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return State{Discarded: []error{fmt.Errorf("failed to parse %s: %w", s.path, err)}}, nil
	}

	return decodeState(doc[KeyHomeSet], doc[KeyCards]), nil
}

// Save writes the state atomically: to a temp file first, then renamed over
// the old one.
func (s *FileStore) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	data, err := yaml.Marshal(document{HomeSet: st.HomeSet, Cards: encode(st.Cards)})
	if err != nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("failed to marshal state: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	tempFile, err := os.CreateTemp(dir, "figured-*.yaml.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return &PersistenceError{Op: "save", Err: fmt.Errorf("failed to write temp file: %w", err)}
	}

	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return &PersistenceError{Op: "save", Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return &PersistenceError{Op: "save", Err: fmt.Errorf("failed to rename temp file: %w", err)}
	}

	return nil
}

// Close is a no-op; the file is only open while loading or saving.
func (s *FileStore) Close() error { return nil }
