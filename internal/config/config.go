package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"kanchat-cli/internal/store"
)

type StatusMode string

const (
	StatusModeEnum    StatusMode = "enum"
	StatusModeColumns StatusMode = "columns"
)

type Config struct {
	APIURL     string
	WSURL      string
	Token      string
	Board      string
	StatusMode StatusMode
	LogLevel   string
	Debug      bool

	Reconnect ReconnectConfig
	Markdown  bool
	Glyphs    string
}

type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

const (
	DefaultAPIURL            = "http://localhost:8888"
	DefaultReconnectDelay    = 3 * time.Second
	DefaultReconnectAttempts = 5
)

// Load resolves configuration from, lowest precedence first: built-in defaults,
// ~/.kanchat/config.json, a .env file in the working directory, and the process
// environment. Command-line flags are applied on top by the caller.
func Load() (Config, error) {
	// .env never overrides variables that are already set.
	_ = godotenv.Load(".env")

	fc, err := store.LoadConfig()
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg := Config{
		APIURL:     firstNonEmpty(os.Getenv("KANCHAT_API_URL"), fc.APIURL, DefaultAPIURL),
		WSURL:      firstNonEmpty(os.Getenv("KANCHAT_WS_URL"), fc.WSURL),
		Token:      os.Getenv("KANCHAT_TOKEN"),
		Board:      firstNonEmpty(os.Getenv("KANCHAT_BOARD"), fc.CurrentBoard),
		StatusMode: StatusMode(firstNonEmpty(os.Getenv("KANCHAT_STATUS_MODE"), fc.StatusMode, string(StatusModeEnum))),
		LogLevel:   firstNonEmpty(os.Getenv("KANCHAT_LOG_LEVEL"), "info"),
		Reconnect: ReconnectConfig{
			BaseDelay:   getEnvDuration("KANCHAT_RECONNECT_DELAY", DefaultReconnectDelay),
			MaxAttempts: getEnvInt("KANCHAT_RECONNECT_ATTEMPTS", DefaultReconnectAttempts),
		},
		Markdown: true,
		Glyphs:   "unicode",
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.Debug = true
	}
	if fc.TUI != nil {
		if fc.TUI.Markdown != nil {
			cfg.Markdown = *fc.TUI.Markdown
		}
		if g := strings.TrimSpace(fc.TUI.Glyphs); g != "" {
			cfg.Glyphs = g
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StatusMode {
	case StatusModeEnum, StatusModeColumns:
	default:
		return fmt.Errorf("invalid status mode %q (want enum|columns)", c.StatusMode)
	}
	if _, err := url.Parse(c.APIURL); err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("invalid reconnect attempts: %d", c.Reconnect.MaxAttempts)
	}
	return nil
}

// ChatURL returns ws(s)://<host>/api/ws/chat?board_id=<id>.
func (c Config) ChatURL(boardID string) (string, error) {
	base := strings.TrimSpace(c.WSURL)
	if base == "" {
		u, err := url.Parse(strings.TrimSpace(c.APIURL))
		if err != nil {
			return "", err
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/chat"
		base = u.String()
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("board_id", boardID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
