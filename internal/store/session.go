package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"kanchat-cli/internal/model"
)

// SessionFile is the persisted login. Only the token is required; the user is
// whatever the server returned at login time.
type SessionFile struct {
	AccessToken string      `json:"accessToken"`
	User        *model.User `json:"user,omitempty"`
}

// SessionFileStore persists the session next to config.json.
type SessionFileStore struct {
	// Dir overrides ConfigDir() (tests).
	Dir string
}

func (s SessionFileStore) path() (string, error) {
	dir := s.Dir
	if dir == "" {
		d, err := ConfigDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return filepath.Join(dir, "session.json"), nil
}

// Load returns an empty session when none was saved.
func (s SessionFileStore) Load() (SessionFile, error) {
	path, err := s.path()
	if err != nil {
		return SessionFile{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SessionFile{}, nil
		}
		return SessionFile{}, err
	}
	var sf SessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return SessionFile{}, err
	}
	return sf, nil
}

func (s SessionFileStore) Save(sf SessionFile) error {
	path, err := s.path()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(dir, "session.json.*.tmp", path, b, 0o600)
}

func (s SessionFileStore) Clear() error {
	path, err := s.path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
