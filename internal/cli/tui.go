package cli

import (
	"fmt"

	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/logging"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/tui"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// runTUI opens one board view: a sync engine and a chat session sharing a
// notification relay. Both are torn down when the view closes.
func runTUI(cmd *cobra.Command, app *App) error {
	cfg, err := app.config()
	if err != nil {
		return writeErr(cmd, err)
	}
	boardID, err := app.boardID()
	if err != nil {
		return writeErr(cmd, err)
	}
	c, err := app.client()
	if err != nil {
		return writeErr(cmd, err)
	}
	if _, err := c.Session.RequireToken(); err != nil {
		return writeErr(cmd, err)
	}

	title := "Board " + boardID.String()
	if b, err := c.Board(cmd.Context(), boardID); err == nil && b.Title != "" {
		title = fmt.Sprintf("%s (#%s)", b.Title, boardID)
	} else if err != nil {
		return writeErr(cmd, err)
	}

	closeLog, err := logging.SetupFile(cfg)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer closeLog()

	relay := notify.NewRelay()
	eng := boardsync.New(boardsync.Options{
		BoardID: boardID,
		Remote:  c,
		Mode:    cfg.StatusMode,
		Notify:  relay,
	})
	defer eng.Close()
	if err := eng.Load(cmd.Context()); err != nil {
		relay.Error("Could not load board", err.Error())
	}

	v := openChat(cmd.Context(), cfg, c, boardID, relay, true)
	defer v.Close()
	// A 401 anywhere ends the chat too.
	c.Session.OnLogout(v.Session.Close)
	v.Session.LoadHistory(cmd.Context())
	if err := v.Session.Connect(cmd.Context()); err != nil {
		log.WithError(err).Warn("chat connect failed")
	}

	return tui.Run(tui.Options{
		Board:    eng,
		Chat:     v.Session,
		Notify:   relay,
		Title:    title,
		Self:     c.Session.User().Username,
		Markdown: cfg.Markdown,
		Glyphs:   cfg.Glyphs,
	})
}
