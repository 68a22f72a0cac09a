// Package configstore keeps the device configuration edited by the shell
// and persists the startup configuration.
package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store guards the device state and the startup-config file.
type Store struct {
	mu       sync.RWMutex
	state    *State
	history  *History
	filePath string
}

// New creates a store with factory defaults. filePath is the
// startup-config location; empty disables persistence.
func New(filePath string) *Store {
	return &Store{
		state:    NewState(),
		history:  NewHistory(20),
		filePath: filePath,
	}
}

// Path returns the startup-config location.
func (s *Store) Path() string { return s.filePath }

// View calls fn with the current state. fn must not modify or retain it.
func (s *Store) View(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// Update calls fn with a copy of the state and installs the copy if fn
// succeeds, so a failing action leaves no partial change.
func (s *Store) Update(fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// Hostname returns the configured host name.
func (s *Store) Hostname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Hostname
}

// Reset restores factory defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = NewState()
}

// Load reads the startup configuration. A missing file yields "".
func (s *Store) Load() (string, error) {
	if s.filePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // start with empty config
		}
		return "", fmt.Errorf("read startup-config: %w", err)
	}
	return string(data), nil
}

// Save writes doc as the startup configuration. The file is replaced
// atomically and the document is kept in the save history.
func (s *Store) Save(doc, comment string) error {
	if s.filePath == "" {
		return fmt.Errorf("no startup-config path configured")
	}
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".startup-config-*")
	if err != nil {
		return fmt.Errorf("write startup-config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("write startup-config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write startup-config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		return fmt.Errorf("write startup-config: %w", err)
	}

	s.mu.Lock()
	s.history.Push(&HistoryEntry{Text: doc, Timestamp: time.Now(), Comment: comment})
	s.mu.Unlock()
	return nil
}

// History returns the saved documents, most recent first.
func (s *Store) History() []*HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.List()
}

// Saved returns the nth most recent saved document (0 = latest).
func (s *Store) Saved(n int) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Get(n)
}
