// Package chat is the per-board chat session: the arrival-ordered message log,
// the participant roster, unread and mention tracking, and the input buffer.
package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/channel"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/transport"
)

// HistoryLimit is how many messages are fetched when a session starts.
const HistoryLimit = 50

// previewLen bounds the message text shown in a notification.
const previewLen = 50

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

type Conn interface {
	channel.Transport
	Connect(ctx context.Context, boardID model.ID, token string) error
	Disconnect()
	Subscribe(fn func(transport.Event)) (unsubscribe func())
}

type Identity interface {
	RequireToken() (string, error)
	User() model.User
}

type History interface {
	Messages(ctx context.Context, boardID model.ID, limit int) ([]model.Message, error)
}

type Archive interface {
	Append(ctx context.Context, m model.Message) error
}

type Options struct {
	BoardID  model.ID
	Identity Identity
	Conn     Conn
	History  History
	Notify   *notify.Relay
	Now      func() time.Time

	// Archive is optional; it receives every live message.
	Archive Archive
}

type Session struct {
	opts Options
	ch   *channel.Channel

	mu         sync.Mutex
	log        []model.Message
	roster     []model.Participant
	rosterIdx  map[string]int
	seenIDs    map[model.ID]struct{}
	duplicates int
	unread     int
	input      string
	status     Status
	loaded     bool
	closed     bool
	unsubConn  func()
	changed    chan struct{}
}

func NewSession(o Options) *Session {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Notify == nil {
		o.Notify = notify.NewRelay()
	}
	s := &Session{
		opts:      o,
		rosterIdx: map[string]int{},
		seenIDs:   map[model.ID]struct{}{},
		status:    StatusDisconnected,
		changed:   make(chan struct{}, 1),
	}
	s.ch = channel.New(o.BoardID, o.Conn)
	s.ch.Subscribe(s.receive)
	s.ch.OnServerError(func(msg string) {
		s.opts.Notify.Error("Chat", msg)
	})
	return s
}

func (s *Session) BoardID() model.ID { return s.opts.BoardID }

// Start loads the history backlog and then connects.
func (s *Session) Start(ctx context.Context) error {
	s.LoadHistory(ctx)
	return s.Connect(ctx)
}

// LoadHistory seeds the log and roster from the server once. Failures leave the
// session live-only.
func (s *Session) LoadHistory(ctx context.Context) {
	s.mu.Lock()
	if s.loaded || s.opts.History == nil {
		s.loaded = true
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.mu.Unlock()

	msgs, err := s.opts.History.Messages(ctx, s.opts.BoardID, HistoryLimit)
	if err != nil {
		log.WithField("board", s.opts.BoardID).WithError(err).Debug("chat history unavailable")
		return
	}
	s.mu.Lock()
	for _, m := range msgs {
		if m.BoardID != s.opts.BoardID {
			continue
		}
		s.log = append(s.log, m)
		if !m.ID.IsZero() {
			s.seenIDs[m.ID] = struct{}{}
		}
		s.addParticipantLocked(participantFor(m.UserID, m.Username), false)
	}
	s.mu.Unlock()
	s.signal()
}

// Connect opens the board socket. Without a usable token it fails with
// auth.ErrAuthRequired and raises an error notification.
func (s *Session) Connect(ctx context.Context) error {
	var token string
	var err error
	if s.opts.Identity == nil {
		err = auth.ErrAuthRequired
	} else {
		token, err = s.opts.Identity.RequireToken()
	}
	if err != nil {
		if errors.Is(err, auth.ErrAuthRequired) {
			s.opts.Notify.Error("", "Authentication required")
		}
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("chat: session closed")
	}
	if s.unsubConn == nil {
		s.unsubConn = s.opts.Conn.Subscribe(s.onTransportEvent)
	}
	s.status = StatusConnecting
	s.mu.Unlock()
	s.signal()

	return s.opts.Conn.Connect(ctx, s.opts.BoardID, token)
}

func (s *Session) onTransportEvent(ev transport.Event) {
	s.mu.Lock()
	switch ev.Kind {
	case transport.EventConnect:
		s.status = StatusConnected
	case transport.EventDisconnect:
		s.status = StatusDisconnected
	case transport.EventError:
		s.status = StatusError
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Session) receive(m model.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.opts.Now()
	}
	local := s.localUser()
	self := isSelf(m, local)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.log = append(s.log, m)
	if !m.ID.IsZero() {
		if _, dup := s.seenIDs[m.ID]; dup {
			s.duplicates++
			log.WithFields(log.Fields{"board": s.opts.BoardID, "message": m.ID}).Debug("duplicate chat delivery")
		}
		s.seenIDs[m.ID] = struct{}{}
	}
	s.addParticipantLocked(participantFor(m.UserID, m.Username), true)
	if !self {
		s.unread++
	}
	s.mu.Unlock()

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Append(context.Background(), m); err != nil {
			log.WithError(err).Warn("archive chat message")
		}
	}
	if !self {
		author := m.Username
		if author == "" {
			author = "user " + m.UserID.String()
		}
		if mentions(m, local) {
			s.opts.Notify.Warning(author+" mentioned you", preview(m.Content))
		} else {
			s.opts.Notify.Info(author, preview(m.Content))
		}
	}
	s.signal()
	return nil
}

func (s *Session) localUser() model.User {
	if s.opts.Identity == nil {
		return model.User{}
	}
	return s.opts.Identity.User()
}

func participantFor(id model.ID, username string) model.Participant {
	m := model.Message{UserID: id, Username: username}
	return model.Participant{Key: m.AuthorKey(), UserID: id, Username: strings.TrimSpace(username)}
}

// addParticipantLocked records an author in first-appearance order. An author
// first seen by name only is merged with the same name carrying a user id.
func (s *Session) addParticipantLocked(p model.Participant, online bool) {
	i, ok := s.rosterIdx[p.Key]
	if !ok {
		i, ok = s.sameNameLocked(p)
		if ok {
			s.rosterIdx[p.Key] = i
			if s.roster[i].UserID.IsZero() && !p.UserID.IsZero() {
				s.roster[i].Key = p.Key
				s.roster[i].UserID = p.UserID
			}
		}
	}
	if ok {
		if online {
			s.roster[i].Online = true
		}
		if s.roster[i].Username == "" {
			s.roster[i].Username = p.Username
		}
		return
	}
	p.Online = online
	s.rosterIdx[p.Key] = len(s.roster)
	s.roster = append(s.roster, p)
}

func (s *Session) sameNameLocked(p model.Participant) (int, bool) {
	if p.Username == "" {
		return 0, false
	}
	for i, q := range s.roster {
		if !strings.EqualFold(q.Username, p.Username) {
			continue
		}
		if q.UserID.IsZero() || p.UserID.IsZero() {
			return i, true
		}
	}
	return 0, false
}

func isSelf(m model.Message, u model.User) bool {
	if !u.ID.IsZero() && !m.UserID.IsZero() {
		return u.ID == m.UserID
	}
	return u.Username != "" && strings.EqualFold(u.Username, m.Username)
}

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_.\-]+)`)

// ParseMentions returns the distinct @names in content, in order of appearance.
func ParseMentions(content string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		name := strings.TrimRight(m[1], ".")
		k := strings.ToLower(name)
		if name == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, name)
	}
	return out
}

func mentions(m model.Message, u model.User) bool {
	if u.Username == "" && u.ID.IsZero() {
		return false
	}
	for _, name := range m.Mentions {
		if (u.Username != "" && strings.EqualFold(name, u.Username)) || (!u.ID.IsZero() && name == u.ID.String()) {
			return true
		}
	}
	if u.Username == "" {
		return false
	}
	for _, name := range ParseMentions(m.Content) {
		if strings.EqualFold(name, u.Username) {
			return true
		}
	}
	return false
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

// Messages returns the log in arrival order.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.log...)
}

// Participants returns the roster in first-seen order.
func (s *Session) Participants() []model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Participant(nil), s.roster...)
}

// Duplicates counts live messages whose id was already in the log. They are
// kept, not dropped.
func (s *Session) Duplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duplicates
}

func (s *Session) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Session) MarkSeen() {
	s.mu.Lock()
	changed := s.unread != 0
	s.unread = 0
	s.mu.Unlock()
	if changed {
		s.signal()
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

func (s *Session) SetInput(v string) {
	s.mu.Lock()
	s.input = v
	s.mu.Unlock()
}

// Mention appends "@username " to the input buffer.
func (s *Session) Mention(username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		return
	}
	s.mu.Lock()
	s.input += "@" + username + " "
	s.mu.Unlock()
}

// SendMessage sends text and clears the input buffer without waiting for
// delivery. Blank text is a no-op. It reports whether a frame was written.
func (s *Session) SendMessage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s.mu.Lock()
	s.input = ""
	s.mu.Unlock()
	return s.ch.Send(text, ParseMentions(text))
}

// SendInput sends the current input buffer.
func (s *Session) SendInput() bool {
	return s.SendMessage(s.Input())
}

// Changed is signalled (coalesced) whenever the log, roster, unread count or
// status changes.
func (s *Session) Changed() <-chan struct{} { return s.changed }

func (s *Session) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Close tears the session down: the socket is closed and every subscriber is
// dropped. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubConn
	s.unsubConn = nil
	s.status = StatusDisconnected
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.opts.Conn.Disconnect()
	s.ch.Clear()
}
