package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/config"
	"kanchat-cli/internal/store"
)

// Setup configures the global logrus logger for a CLI invocation. Logs go to w
// (stderr for scripted commands).
func Setup(cfg config.Config, w io.Writer) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	log.SetLevel(levelFor(cfg))
}

// SetupFile sends logs to ~/.kanchat/kanchat.log; the TUI owns the terminal so
// nothing may be written to stderr while it runs. The returned func closes the file.
func SetupFile(cfg config.Config) (func(), error) {
	dir, err := store.ConfigDir()
	if err != nil {
		return func() {}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return func() {}, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "kanchat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return func() {}, err
	}
	Setup(cfg, f)
	return func() {
		log.SetOutput(io.Discard)
		_ = f.Close()
	}, nil
}

func levelFor(cfg config.Config) log.Level {
	if cfg.Debug {
		return log.DebugLevel
	}
	lvl, err := log.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
