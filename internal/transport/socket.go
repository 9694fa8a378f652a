package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kanchat-cli/internal/auth"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 54 * time.Second
	DefaultPongWait         = 60 * time.Second
	DefaultWriteWait        = 10 * time.Second
)

// Socket is one open connection. ReadMessage blocks until a data frame arrives
// or the connection fails; Close unblocks it.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// WSDialer opens gorilla websocket connections and keeps them alive with pings.
type WSDialer struct {
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
}

func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
		},
		PingInterval: DefaultPingInterval,
		PongWait:     DefaultPongWait,
		WriteWait:    DefaultWriteWait,
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("websocket handshake: %w", auth.ErrAuthRequired)
		}
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: http %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	s := &wsSocket{
		conn:      conn,
		pongWait:  d.PongWait,
		writeWait: d.WriteWait,
		done:      make(chan struct{}),
	}
	s.extendRead()
	conn.SetPongHandler(func(string) error {
		s.extendRead()
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		s.extendRead()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})
	if d.PingInterval > 0 {
		go s.pingLoop(d.PingInterval)
	}
	return s, nil
}

type wsSocket struct {
	conn      *websocket.Conn
	pongWait  time.Duration
	writeWait time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSocket) extendRead() {
	if s.pongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		s.extendRead()
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *wsSocket) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				return
			}
		}
	}
}
