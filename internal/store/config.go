package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

type FileConfig struct {
	// APIURL is the REST base (e.g. http://localhost:8888). The websocket URL is
	// derived from it unless WSURL is set.
	APIURL string `json:"apiUrl,omitempty"`
	WSURL  string `json:"wsUrl,omitempty"`

	// CurrentBoard is used when --board is omitted.
	CurrentBoard string `json:"currentBoard,omitempty"`

	// StatusMode selects how task status is represented ("enum" or "columns").
	StatusMode string `json:"statusMode,omitempty"`

	// TUI holds optional user preferences for the interactive TUI.
	TUI *TUIConfig `json:"tui,omitempty"`
}

type TUIConfig struct {
	// Glyphs selects the glyph set ("unicode", "ascii").
	Glyphs string `json:"glyphs,omitempty"`
	// Markdown toggles glamour rendering of chat messages.
	Markdown *bool `json:"markdown,omitempty"`
}

func ConfigDir() (string, error) {
	// Test/advanced override (keeps unit tests from touching ~/.kanchat).
	if v := strings.TrimSpace(os.Getenv("KANCHAT_CONFIG_DIR")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kanchat"), nil
}

func configPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func LoadConfig() (*FileConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileConfig{}, nil
		}
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func SaveConfig(cfg *FileConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	// Unique temp name + rename: the CLI and a running TUI may both write.
	return atomicWriteFile(dir, "config.json.*.tmp", path, b, 0o600)
}
