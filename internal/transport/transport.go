// Package transport owns the chat WebSocket of one board view: dialing with the
// bearer token, handing inbound frames to a single handler, and reconnecting on
// a bounded linear schedule.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/model"
)

type State int

const (
	Idle State = iota
	Connecting
	Open
	Retrying
	Terminal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Retrying:
		return "closed(retrying)"
	case Terminal:
		return "closed(terminal)"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventError      EventKind = "error"
)

type Event struct {
	Kind    EventKind
	BoardID model.ID
	// Attempt is the reconnection attempt that produced the event (0 for the first dial).
	Attempt int
	Err     error
}

// ErrNotOpen is returned by Send when there is no open socket.
var ErrNotOpen = errors.New("transport: connection not open")

type FrameHandler func(data []byte)

type Config struct {
	// URLFor builds the socket URL for a board.
	URLFor    func(boardID model.ID) (string, error)
	Dialer    Dialer
	Scheduler Scheduler
	Policy    RetryPolicy
}

type subscriber struct {
	id int
	fn func(Event)
}

type Conn struct {
	cfg Config

	mu       sync.Mutex
	state    State
	boardID  model.ID
	token    string
	attempts int
	lastErr  error
	sock     Socket
	timer    Timer
	gen      int
	life     context.Context
	cancel   context.CancelFunc
	onFrame  FrameHandler
	subs     []subscriber
	nextSub  int
}

func New(cfg Config) *Conn {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWSDialer()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler
	}
	if cfg.Policy.BaseDelay <= 0 {
		cfg.Policy.BaseDelay = DefaultBaseDelay
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = DefaultMaxAttempts
	}
	return &Conn{cfg: cfg}
}

// SetFrameHandler installs the single consumer of inbound frames.
func (c *Conn) SetFrameHandler(h FrameHandler) {
	c.mu.Lock()
	c.onFrame = h
	c.mu.Unlock()
}

// Subscribe registers a lifecycle listener. Listeners run in registration order.
func (c *Conn) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Err returns the last connection error. The terminal state is otherwise silent.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Conn) BoardID() model.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boardID
}

// Connect opens the board socket. It is a no-op while a socket is open or being
// dialed, and fails with auth.ErrAuthRequired (state unchanged) without a token.
// A failed dial is not returned: it is reported as an EventError and retried.
func (c *Conn) Connect(ctx context.Context, boardID model.ID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.ErrAuthRequired
	}
	if boardID.IsZero() {
		return errors.New("transport: board id is required")
	}

	c.mu.Lock()
	if c.state == Open || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.life, c.cancel = context.WithCancel(context.Background())
	c.gen++
	gen := c.gen
	c.state = Connecting
	c.boardID = boardID
	c.token = token
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()

	c.dial(ctx, gen)
	return nil
}

func (c *Conn) dial(ctx context.Context, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	boardID, token, attempt := c.boardID, c.token, c.attempts
	c.state = Connecting
	c.mu.Unlock()

	url, err := c.cfg.URLFor(boardID)
	if err != nil {
		c.fail(gen, attempt, err, false)
		return
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	entry := log.WithFields(log.Fields{"board": boardID, "attempt": attempt})
	entry.Debug("dialing chat socket")
	sock, err := c.cfg.Dialer.Dial(ctx, url, header)
	if err != nil {
		entry.WithError(err).Warn("chat socket dial failed")
		c.fail(gen, attempt, err, false)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.sock = sock
	c.state = Open
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()

	entry.Info("chat socket open")
	c.emit(Event{Kind: EventConnect, BoardID: boardID, Attempt: attempt})
	go c.readLoop(gen, sock)
}

func (c *Conn) readLoop(gen int, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := gen == c.gen && c.sock == sock
			if current {
				c.sock = nil
			}
			c.mu.Unlock()
			if current {
				_ = sock.Close()
				c.fail(gen, 0, err, true)
			}
			return
		}
		c.mu.Lock()
		h := c.onFrame
		live := gen == c.gen
		c.mu.Unlock()
		if !live {
			return
		}
		if h != nil {
			h(data)
		}
	}
}

// fail records err and either schedules the next attempt or gives up.
func (c *Conn) fail(gen, attempt int, err error, wasOpen bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	boardID := c.boardID
	c.lastErr = err
	authFailed := errors.Is(err, auth.ErrAuthRequired)

	delay := c.cfg.Policy.Delay(c.attempts + 1)
	giveUp := authFailed || c.attempts >= c.cfg.Policy.MaxAttempts
	life := c.life
	next := 0
	if giveUp {
		c.state = Terminal
	} else {
		c.attempts++
		next = c.attempts
		c.state = Retrying
		c.timer = c.cfg.Scheduler.AfterFunc(delay, func() {
			c.mu.Lock()
			c.timer = nil
			c.mu.Unlock()
			c.dial(life, gen)
		})
	}
	c.mu.Unlock()

	if wasOpen {
		c.emit(Event{Kind: EventDisconnect, BoardID: boardID, Attempt: attempt, Err: err})
	} else {
		c.emit(Event{Kind: EventError, BoardID: boardID, Attempt: attempt, Err: err})
	}

	entry := log.WithFields(log.Fields{"board": boardID})
	if giveUp {
		entry.WithError(err).Info("chat socket closed; not retrying")
		return
	}
	entry.WithFields(log.Fields{"attempt": next, "delay": delay}).Info("chat socket reconnect scheduled")
}

// Send writes one frame. It fails with ErrNotOpen unless the socket is open.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	sock := c.sock
	open := c.state == Open
	c.mu.Unlock()
	if !open || sock == nil {
		return ErrNotOpen
	}
	return sock.WriteMessage(data)
}

// Disconnect closes the socket, cancels any pending reconnection and drops all
// lifecycle subscribers and the frame handler. On a connection that is already
// closed it only drops the listeners: a Terminal state and its Err are kept.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if (c.state == Idle || c.state == Terminal) && c.sock == nil && c.timer == nil {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.subs = nil
		c.onFrame = nil
		c.mu.Unlock()
		return
	}
	wasOpen := c.state == Open
	boardID := c.boardID
	sock := c.sock
	c.sock = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.state = Idle
	c.attempts = 0
	subs := append([]subscriber(nil), c.subs...)
	c.subs = nil
	c.onFrame = nil
	c.mu.Unlock()

	if sock != nil {
		_ = sock.Close()
	}
	if wasOpen {
		log.WithField("board", boardID).Info("chat socket closed")
		for _, s := range subs {
			s.fn(Event{Kind: EventDisconnect, BoardID: boardID})
		}
	}
}

func (c *Conn) emit(ev Event) {
	c.mu.Lock()
	subs := append([]subscriber(nil), c.subs...)
	c.mu.Unlock()
	for _, s := range subs {
		s.fn(ev)
	}
}
