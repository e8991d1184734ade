package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps profiles in memory and mirrors them to a JSON file.
// Every write replaces the file atomically via a temp file and rename.
// With an empty path nothing touches the disk.
type FileStore struct {
	path string

	mu       sync.Mutex
	profiles map[string]Profile
}

type fileFormat struct {
	Profiles []Profile `json:"profiles"`
}

// NewFileStore loads path if it exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, profiles: make(map[string]Profile)}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	for _, p := range f.Profiles {
		s.profiles[p.ID] = p
	}
	return s, nil
}

// NewMemoryStore returns a store that never persists.
func NewMemoryStore() *FileStore {
	s, _ := NewFileStore("")
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) List(_ context.Context) ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(), nil
}

func (s *FileStore) listLocked() []Profile {
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sortProfiles(out)
	return out
}

func (s *FileStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

func (s *FileStore) Save(_ context.Context, p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshotLocked()
	if p.IsDefault {
		s.clearDefaultLocked()
	}
	s.profiles[p.ID] = p
	return s.commitLocked(prev)
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := s.snapshotLocked()
	delete(s.profiles, id)
	return s.commitLocked(prev)
}

func (s *FileStore) SetDefault(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	prev := s.snapshotLocked()
	s.clearDefaultLocked()
	p.IsDefault = true
	s.profiles[id] = p
	return s.commitLocked(prev)
}

func (s *FileStore) Default(_ context.Context) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.IsDefault {
			return p, nil
		}
	}
	return Profile{}, ErrNoDefault
}

func (s *FileStore) clearDefaultLocked() {
	for id, p := range s.profiles {
		if p.IsDefault {
			p.IsDefault = false
			s.profiles[id] = p
		}
	}
}

func (s *FileStore) snapshotLocked() map[string]Profile {
	cp := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		cp[id] = p
	}
	return cp
}

// commitLocked writes the current set to disk, restoring prev on failure
// so memory and file never disagree.
func (s *FileStore) commitLocked(prev map[string]Profile) error {
	if err := s.writeLocked(); err != nil {
		s.profiles = prev
		return err
	}
	return nil
}

func (s *FileStore) writeLocked() error {
	if s.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(fileFormat{Profiles: s.listLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create profile dir: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp profiles: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename profiles: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
