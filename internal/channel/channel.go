// Package channel decodes the chat socket's frames and fans chat messages out
// to subscribers in registration order.
package channel

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/model"
	"kanchat-cli/internal/transport"
)

// Handler receives one chat message. A returned error (or a panic) is logged and
// does not stop delivery to later handlers.
type Handler func(model.Message) error

// Transport is the subset of *transport.Conn the channel drives.
type Transport interface {
	SetFrameHandler(transport.FrameHandler)
	Send(data []byte) error
}

type entry struct {
	id int
	h  Handler
}

type Channel struct {
	boardID model.ID
	tr      Transport

	mu       sync.Mutex
	handlers []entry
	onError  []func(string)
	nextID   int
}

// New binds a channel for boardID to tr; the channel becomes tr's frame handler.
func New(boardID model.ID, tr Transport) *Channel {
	c := &Channel{boardID: boardID, tr: tr}
	if tr != nil {
		tr.SetFrameHandler(c.Dispatch)
	}
	return c
}

func (c *Channel) BoardID() model.ID { return c.boardID }

func (c *Channel) Subscribe(h Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers = append(c.handlers, entry{id: id, h: h})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.handlers {
			if e.id == id {
				c.handlers = append(c.handlers[:i:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// OnServerError registers a listener for error frames sent by the server.
func (c *Channel) OnServerError(fn func(msg string)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// Clear removes every subscriber.
func (c *Channel) Clear() {
	c.mu.Lock()
	c.handlers = nil
	c.onError = nil
	c.mu.Unlock()
}

// Dispatch decodes one raw frame and delivers it. Malformed frames and frames
// for other boards are dropped.
func (c *Channel) Dispatch(data []byte) {
	f, err := Decode(data)
	if err != nil {
		log.WithField("board", c.boardID).WithError(err).Warn("dropping chat frame")
		return
	}
	switch f.Kind {
	case KindMessage:
		if f.Message.BoardID != c.boardID {
			log.WithFields(log.Fields{"board": c.boardID, "frame_board": f.Message.BoardID}).Debug("ignoring frame for other board")
			return
		}
		c.deliver(f.Message)
	case KindError:
		log.WithField("board", c.boardID).Warnf("server error frame: %s", f.Error)
		c.mu.Lock()
		fns := append([]func(string){}, c.onError...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(f.Error)
		}
	default:
		log.WithFields(log.Fields{"board": c.boardID, "kind": f.Kind}).Debug("control frame")
	}
}

func (c *Channel) deliver(m model.Message) {
	c.mu.Lock()
	hs := append([]entry(nil), c.handlers...)
	c.mu.Unlock()
	for _, e := range hs {
		if err := safeCall(e.h, m); err != nil {
			log.WithFields(log.Fields{"board": c.boardID, "message": m.ID}).WithError(err).Error("chat handler failed")
		}
	}
}

func safeCall(h Handler, m model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(m)
}

// Send writes a chat message to the board. It reports false when the message
// was dropped (socket not open or blank content); delivery is best effort.
func (c *Channel) Send(content string, mentions []string) bool {
	if strings.TrimSpace(content) == "" || c.tr == nil {
		return false
	}
	data, err := Encode(model.MessageRequest{BoardID: c.boardID, Content: content, Mentions: mentions})
	if err != nil {
		log.WithError(err).Error("encode chat message")
		return false
	}
	if err := c.tr.Send(data); err != nil {
		entry := log.WithField("board", c.boardID).WithError(err)
		if errors.Is(err, transport.ErrNotOpen) {
			entry.Debug("chat message dropped")
		} else {
			entry.Warn("chat message send failed")
		}
		return false
	}
	return true
}
