// Package notify holds the user-visible notification queue shared by the chat
// session and the board sync engine. Presentation (toasts, counters) reads it.
package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Error   Severity = "error"
)

type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"type"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultDedupWindow collapses repeated identical notifications (e.g. the same
// failure raised by several retries of one gesture).
const DefaultDedupWindow = 2 * time.Second

type Relay struct {
	mu    sync.Mutex
	items []Notification // most recent first
	subs  map[chan struct{}]struct{}

	now         func() time.Time
	dedupWindow time.Duration
}

type Option func(*Relay)

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// WithDedupWindow sets the collapse window; zero disables dedup.
func WithDedupWindow(d time.Duration) Option {
	return func(r *Relay) { r.dedupWindow = d }
}

func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		subs:        map[chan struct{}]struct{}{},
		now:         time.Now,
		dedupWindow: DefaultDedupWindow,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Push enqueues a notification at the front of the queue and returns it.
func (r *Relay) Push(sev Severity, title, message string) Notification {
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	now := r.now()

	r.mu.Lock()
	if r.dedupWindow > 0 {
		for i, n := range r.items {
			if n.Read || n.Severity != sev || n.Title != title || n.Message != message {
				continue
			}
			if now.Sub(n.CreatedAt) > r.dedupWindow {
				break
			}
			n.CreatedAt = now
			r.items = append(r.items[:i], r.items[i+1:]...)
			r.items = append([]Notification{n}, r.items...)
			r.mu.Unlock()
			r.signal()
			return n
		}
	}
	n := Notification{
		ID:        uuid.NewString(),
		Severity:  sev,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	r.items = append([]Notification{n}, r.items...)
	r.mu.Unlock()

	log.WithFields(log.Fields{"type": sev, "title": title}).Debug("notification: " + message)
	r.signal()
	return n
}

func (r *Relay) Info(title, message string) Notification    { return r.Push(Info, title, message) }
func (r *Relay) Success(title, message string) Notification { return r.Push(Success, title, message) }
func (r *Relay) Warning(title, message string) Notification { return r.Push(Warning, title, message) }
func (r *Relay) Error(title, message string) Notification   { return r.Push(Error, title, message) }

// MarkAsRead flags one notification as read; false when the id is unknown.
func (r *Relay) MarkAsRead(id string) bool {
	r.mu.Lock()
	found := false
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Read = true
			found = true
			break
		}
	}
	r.mu.Unlock()
	if found {
		r.signal()
	}
	return found
}

func (r *Relay) MarkAllAsRead() {
	r.mu.Lock()
	for i := range r.items {
		r.items[i].Read = true
	}
	r.mu.Unlock()
	r.signal()
}

// List returns a copy of the queue, most recent first.
func (r *Relay) List() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

func (r *Relay) Unread() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, 0, len(r.items))
	for _, n := range r.items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

func (r *Relay) UnreadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.items {
		if !n.Read {
			c++
		}
	}
	return c
}

// Changed returns a channel that receives a coalesced signal after every queue
// mutation. Call the returned func to stop receiving.
func (r *Relay) Changed() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
	}
}

func (r *Relay) signal() {
	r.mu.Lock()
	for ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	r.mu.Unlock()
}
