package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/chat"
	"kanchat-cli/internal/config"
	"kanchat-cli/internal/format"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/store"
	"kanchat-cli/internal/transport"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// chatView is one board's chat wiring: a transport and the session on top.
type chatView struct {
	Conn    *transport.Conn
	Session *chat.Session
	Notify  *notify.Relay
	archive *store.Archive
}

func (v *chatView) Close() {
	v.Session.Close()
	if v.archive != nil {
		_ = v.archive.Close()
	}
}

// openChat wires a chat session for boardID. The transcript archive is best
// effort: when it cannot be opened the session simply runs without one.
func openChat(ctx context.Context, cfg config.Config, c *api.Client, boardID model.ID, relay *notify.Relay, archive bool) *chatView {
	conn := transport.New(transport.Config{
		URLFor: func(id model.ID) (string, error) { return cfg.ChatURL(id.String()) },
		Policy: transport.RetryPolicy{
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
		},
	})
	v := &chatView{Conn: conn, Notify: relay}
	opts := chat.Options{
		BoardID:  boardID,
		Identity: c.Session,
		Conn:     conn,
		History:  c,
		Notify:   relay,
	}
	if archive {
		if path, err := store.ArchivePath(); err == nil {
			a, err := store.OpenArchive(ctx, path)
			if err != nil {
				log.WithError(err).Warn("chat archive unavailable")
			} else {
				v.archive = a
				opts.Archive = a
			}
		}
	}
	v.Session = chat.NewSession(opts)
	return v
}

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Board chat commands (the board comes from --board)",
	}
	cmd.AddCommand(newChatHistoryCmd(app))
	cmd.AddCommand(newChatSendCmd(app))
	cmd.AddCommand(newChatTailCmd(app))
	cmd.AddCommand(newChatLogCmd(app))
	return cmd
}

func newChatHistoryCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch recent messages from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := app.boardID()
			if err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			msgs, err := c.Messages(cmd.Context(), boardID, limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			if msgs == nil {
				msgs = []model.Message{}
			}
			return writeOut(cmd, app, msgs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", api.HistoryLimit, "Maximum number of messages")
	return cmd
}

func newChatSendCmd(app *App) *cobra.Command {
	var message string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one chat message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(message) == "" {
				return writeErr(cmd, errors.New("--message is required"))
			}
			boardID, err := app.boardID()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := app.config()
			if err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}

			v := openChat(cmd.Context(), cfg, c, boardID, notify.NewRelay(), false)
			defer v.Close()
			if err := v.Session.Connect(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			if err := waitConnected(cmd.Context(), v, timeout); err != nil {
				return writeErr(cmd, err)
			}
			if !v.Session.SendMessage(message) {
				return writeErr(cmd, errors.New("chat: message not sent"))
			}
			return writeOut(cmd, app, model.MessageRequest{
				BoardID:  boardID,
				Content:  message,
				Mentions: chat.ParseMentions(message),
			})
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Message text (@name mentions are detected)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the socket")
	return cmd
}

// waitConnected blocks until the session's socket is open, the transport gives
// up, or timeout elapses.
func waitConnected(ctx context.Context, v *chatView, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		switch v.Conn.State() {
		case transport.Open:
			return nil
		case transport.Terminal:
			if err := v.Conn.Err(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return errors.New("chat: connection closed")
		}
		select {
		case <-v.Session.Changed():
		case <-deadline.C:
			return fmt.Errorf("chat: not connected after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tailEvent is a lifecycle line in `chat tail` output.
type tailEvent struct {
	Event   string   `json:"event"`
	BoardID model.ID `json:"board_id"`
	Attempt int      `json:"attempt,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func newChatTailCmd(app *App) *cobra.Command {
	var history bool
	var archive bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream chat messages and connection events as ndjson until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := app.boardID()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg, err := app.config()
			if err != nil {
				return writeErr(cmd, err)
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			v := openChat(ctx, cfg, c, boardID, notify.NewRelay(), archive)
			defer v.Close()
			return tailChat(ctx, cmd.OutOrStdout(), v, history)
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Print the recent backlog before live messages")
	cmd.Flags().BoolVar(&archive, "archive", true, "Record received messages in the local transcript")
	return cmd
}

func tailChat(ctx context.Context, w io.Writer, v *chatView, history bool) error {
	var mu sync.Mutex
	emit := func(x any) {
		mu.Lock()
		defer mu.Unlock()
		if err := format.WriteLine(w, x); err != nil {
			log.WithError(err).Debug("tail write failed")
		}
	}

	printed := 0
	if history {
		v.Session.LoadHistory(ctx)
	} else {
		printed = len(v.Session.Messages())
	}

	done := make(chan struct{})
	var once sync.Once
	v.Conn.Subscribe(func(ev transport.Event) {
		te := tailEvent{Event: string(ev.Kind), BoardID: ev.BoardID, Attempt: ev.Attempt}
		if ev.Err != nil {
			te.Error = ev.Err.Error()
		}
		emit(te)
		if v.Conn.State() == transport.Terminal {
			once.Do(func() { close(done) })
		}
	})
	if err := v.Session.Connect(ctx); err != nil {
		return err
	}

	flush := func() {
		msgs := v.Session.Messages()
		for ; printed < len(msgs); printed++ {
			emit(msgs[printed])
		}
		v.Session.MarkSeen()
	}
	for {
		flush()
		select {
		case <-v.Session.Changed():
		case <-done:
			flush()
			if err := v.Conn.Err(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		case <-ctx.Done():
			flush()
			return nil
		}
	}
}

func newChatLogCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the local transcript of received messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, err := app.boardID()
			if err != nil {
				return writeErr(cmd, err)
			}
			path, err := store.ArchivePath()
			if err != nil {
				return writeErr(cmd, err)
			}
			a, err := store.OpenArchive(cmd.Context(), path)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer a.Close()

			msgs, err := a.Messages(cmd.Context(), boardID, limit)
			if err != nil {
				return writeErr(cmd, err)
			}
			if msgs == nil {
				msgs = []model.Message{}
			}
			return writeOut(cmd, app, msgs)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Only the last N messages (0 = all)")
	return cmd
}
