package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kanchat-cli/internal/model"

	_ "modernc.org/sqlite"
)

// Archive is a local SQLite transcript of chat messages seen by this machine.
// It is written by live chat sessions and read by `kanchat chat log`; it never
// feeds back into a session's log.
type Archive struct {
	db *sql.DB
}

// ArchivePath is the default transcript location under the config dir.
func ArchivePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcript.sqlite"), nil
}

func OpenArchive(ctx context.Context, path string) (*Archive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("archive: missing path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	// WAL: a TUI and a `chat tail` may append at the same time.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := migrateArchive(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func migrateArchive(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			board_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			content TEXT NOT NULL,
			mentions_json TEXT,
			created_at_unixms INTEGER NOT NULL,
			received_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_board ON messages(board_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Append records a message in arrival order. Duplicates (same server id
// delivered twice) are kept; the transcript mirrors what the session saw.
func (a *Archive) Append(ctx context.Context, m model.Message) error {
	var mentions any
	if len(m.Mentions) > 0 {
		b, err := json.Marshal(m.Mentions)
		if err != nil {
			return err
		}
		mentions = string(b)
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO messages(board_id, message_id, user_id, username, content, mentions_json, created_at_unixms, received_at_unixms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		m.BoardID.String(), m.ID.String(), m.UserID.String(), m.Username, m.Content, mentions,
		m.CreatedAt.UTC().UnixMilli(), time.Now().UTC().UnixMilli(),
	)
	return err
}

// Messages returns the last `limit` archived messages for a board, oldest first.
// limit <= 0 returns everything.
func (a *Archive) Messages(ctx context.Context, boardID model.ID, limit int) ([]model.Message, error) {
	q := `SELECT message_id, user_id, username, content, mentions_json, created_at_unixms
	      FROM messages WHERE board_id = ? ORDER BY seq DESC`
	args := []any{boardID.String()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			id, userID, username, content string
			mentions                      sql.NullString
			createdMs                     int64
		)
		if err := rows.Scan(&id, &userID, &username, &content, &mentions, &createdMs); err != nil {
			return nil, err
		}
		m := model.Message{
			ID:        model.ID(id),
			BoardID:   boardID,
			UserID:    model.ID(userID),
			Username:  username,
			Content:   content,
			CreatedAt: time.UnixMilli(createdMs).UTC(),
		}
		if mentions.Valid && mentions.String != "" {
			_ = json.Unmarshal([]byte(mentions.String), &m.Mentions)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
