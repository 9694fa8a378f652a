// Package auth holds the bearer session consumed by the REST client, the
// transport and the chat session. Issuance and refresh belong to the server.
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/model"
	"kanchat-cli/internal/store"
)

// ErrAuthRequired is returned when an operation needs a token and none (or only
// an expired one) is available. It is never retried.
var ErrAuthRequired = errors.New("authentication required")

type TokenStore interface {
	Load() (store.SessionFile, error)
	Save(store.SessionFile) error
	Clear() error
}

type Session struct {
	mu       sync.Mutex
	store    TokenStore
	token    string
	user     *model.User
	onLogout []func()
	now      func() time.Time
}

// NewSession loads the persisted session (if any) from ts.
func NewSession(ts TokenStore) (*Session, error) {
	s := &Session{store: ts, now: time.Now}
	if ts == nil {
		return s, nil
	}
	sf, err := ts.Load()
	if err != nil {
		return nil, err
	}
	s.token = strings.TrimSpace(sf.AccessToken)
	s.user = sf.User
	return s, nil
}

// NewStaticSession wraps a token that is not persisted (e.g. KANCHAT_TOKEN).
func NewStaticSession(token string) *Session {
	return &Session{token: strings.TrimSpace(token), now: time.Now}
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// RequireToken returns the token or ErrAuthRequired when it is missing or its
// exp claim is in the past.
func (s *Session) RequireToken() (string, error) {
	s.mu.Lock()
	tok := s.token
	now := s.now()
	s.mu.Unlock()
	if tok == "" {
		return "", ErrAuthRequired
	}
	if c, err := ParseClaims(tok); err == nil && c.Expired(now) {
		return "", ErrAuthRequired
	}
	return tok, nil
}

// Login stores the issued token (and user, when the server returned one).
func (s *Session) Login(resp model.AuthResponse) error {
	tok := strings.TrimSpace(resp.AccessToken)
	if tok == "" {
		return errors.New("login: empty access token")
	}
	s.mu.Lock()
	s.token = tok
	s.user = resp.User
	ts := s.store
	s.mu.Unlock()
	if ts == nil {
		return nil
	}
	return ts.Save(store.SessionFile{AccessToken: tok, User: resp.User})
}

// Logout clears the token in memory and on disk and runs the logout hooks.
// Safe to call repeatedly.
func (s *Session) Logout() error {
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	s.user = nil
	hooks := append([]func(){}, s.onLogout...)
	ts := s.store
	s.mu.Unlock()

	var err error
	if ts != nil {
		err = ts.Clear()
	}
	if had {
		log.Info("session cleared")
		for _, h := range hooks {
			h()
		}
	}
	return err
}

// OnLogout registers a hook run when the session is torn down (e.g. after a 401).
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// User returns the local user: the stored profile when present, else whatever
// the token claims say. Zero value when unauthenticated.
func (s *Session) User() model.User {
	s.mu.Lock()
	tok := s.token
	var u model.User
	if s.user != nil {
		u = *s.user
	}
	s.mu.Unlock()

	if tok == "" {
		return model.User{}
	}
	if c, err := ParseClaims(tok); err == nil {
		if u.ID.IsZero() {
			u.ID = c.UserID
		}
		if u.Username == "" {
			u.Username = c.Username
		}
		if u.Email == "" {
			u.Email = c.Email
		}
	}
	if u.Username == "" && u.Email != "" {
		u.Username = strings.Split(u.Email, "@")[0]
	}
	return u
}

// SetUser records the profile fetched after login.
func (s *Session) SetUser(u model.User) error {
	s.mu.Lock()
	s.user = &u
	tok := s.token
	ts := s.store
	s.mu.Unlock()
	if ts == nil || tok == "" {
		return nil
	}
	return ts.Save(store.SessionFile{AccessToken: tok, User: &u})
}
