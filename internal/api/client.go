// Package api is the REST collaborator: boards, columns, tasks, message history
// and the login endpoints, all authenticated with the session's bearer token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/model"
)

// HistoryLimit is the size of the initial chat backlog.
const HistoryLimit = 50

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session *auth.Session
}

func New(baseURL string, s *auth.Session) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{},
		Session: s,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return err
		}
		rd = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+"/api"+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Session != nil {
		if tok := c.Session.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode, Message: errorMessage(raw, resp)}
		if resp.StatusCode == http.StatusUnauthorized && c.Session != nil {
			if err := c.Session.Logout(); err != nil {
				log.WithError(err).Warn("clear session after 401")
			}
		}
		log.WithFields(log.Fields{"method": method, "path": path, "status": resp.StatusCode}).Debug("request failed")
		return se
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(raw []byte, resp *http.Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if s := strings.TrimSpace(body.Error); s != "" {
			return s
		}
		if s := strings.TrimSpace(body.Message); s != "" {
			return s
		}
	}
	if s := http.StatusText(resp.StatusCode); s != "" {
		return s
	}
	return "server error"
}

func boardPath(boardID model.ID, rest ...string) string {
	p := "/boards/" + url.PathEscape(boardID.String())
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// Auth.

func (c *Client) Login(ctx context.Context, email, password string) (model.AuthResponse, error) {
	var resp model.AuthResponse
	in := map[string]string{"email": strings.TrimSpace(email), "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &resp); err != nil {
		return model.AuthResponse{}, err
	}
	if resp.AccessToken == "" {
		return model.AuthResponse{}, errors.New("login: server returned no access token")
	}
	if resp.User == nil {
		email = strings.TrimSpace(email)
		resp.User = &model.User{Email: email, Username: strings.Split(email, "@")[0]}
	}
	if c.Session != nil {
		if err := c.Session.Login(resp); err != nil {
			return model.AuthResponse{}, err
		}
	}
	return resp, nil
}

// Register creates the account and logs in with the same credentials.
func (c *Client) Register(ctx context.Context, in model.RegisterInput) (model.AuthResponse, error) {
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, nil); err != nil {
		return model.AuthResponse{}, err
	}
	return c.Login(ctx, in.Email, in.Password)
}

func (c *Client) Profile(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodGet, "/profile", nil, &u)
	return u, err
}

// Boards.

func (c *Client) Boards(ctx context.Context) ([]model.Board, error) {
	var out []model.Board
	err := c.do(ctx, http.MethodGet, "/boards", nil, &out)
	return out, err
}

func (c *Client) Board(ctx context.Context, id model.ID) (model.Board, error) {
	var out model.Board
	err := c.do(ctx, http.MethodGet, boardPath(id), nil, &out)
	return out, err
}

func (c *Client) CreateBoard(ctx context.Context, in model.BoardInput) (model.Board, error) {
	var out model.Board
	err := c.do(ctx, http.MethodPost, "/boards", in, &out)
	return out, err
}

func (c *Client) UpdateBoard(ctx context.Context, id model.ID, in model.BoardInput) (model.Board, error) {
	var out model.Board
	err := c.do(ctx, http.MethodPut, boardPath(id), in, &out)
	return out, err
}

func (c *Client) DeleteBoard(ctx context.Context, id model.ID) error {
	return c.do(ctx, http.MethodDelete, boardPath(id), nil, nil)
}

// Columns.

func (c *Client) Columns(ctx context.Context, boardID model.ID) ([]model.Column, error) {
	var out []model.Column
	err := c.do(ctx, http.MethodGet, boardPath(boardID, "columns"), nil, &out)
	return out, err
}

func (c *Client) CreateColumn(ctx context.Context, boardID model.ID, in model.ColumnInput) (model.Column, error) {
	var out model.Column
	err := c.do(ctx, http.MethodPost, boardPath(boardID, "columns"), in, &out)
	return out, err
}

func (c *Client) UpdateColumn(ctx context.Context, boardID, columnID model.ID, in model.ColumnInput) (model.Column, error) {
	var out model.Column
	err := c.do(ctx, http.MethodPut, boardPath(boardID, "columns", columnID.String()), in, &out)
	return out, err
}

func (c *Client) DeleteColumn(ctx context.Context, boardID, columnID model.ID) error {
	return c.do(ctx, http.MethodDelete, boardPath(boardID, "columns", columnID.String()), nil, nil)
}

// Tasks.

// Tasks accepts a bare array, {"tasks":[...]}, or the legacy grouped
// {"columns":[{"id","title","tasks":[...]}]} shape, which is flattened with the
// group id as the task's column.
func (c *Client) Tasks(ctx context.Context, boardID model.ID) ([]model.Task, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, boardPath(boardID, "tasks"), nil, &raw); err != nil {
		return nil, err
	}
	return decodeTaskList(raw)
}

func decodeTaskList(raw json.RawMessage) ([]model.Task, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var out []model.Task
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped struct {
		Tasks   []model.Task `json:"tasks"`
		Columns []struct {
			ID    model.ID     `json:"id"`
			Title string       `json:"title"`
			Tasks []model.Task `json:"tasks"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Tasks != nil {
		return wrapped.Tasks, nil
	}
	var out []model.Task
	for _, col := range wrapped.Columns {
		for _, t := range col.Tasks {
			if t.ColumnID.IsZero() {
				t.ColumnID = col.ID
			}
			if t.Status == "" {
				t.Status = model.Status(col.ID)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, boardID model.ID, in model.TaskInput) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, http.MethodPost, boardPath(boardID, "tasks"), in, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, boardID, taskID model.ID, patch model.TaskPatch) (model.Task, error) {
	var out model.Task
	err := c.do(ctx, http.MethodPut, boardPath(boardID, "tasks", taskID.String()), patch, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, boardID, taskID model.ID) error {
	return c.do(ctx, http.MethodDelete, boardPath(boardID, "tasks", taskID.String()), nil, nil)
}

// Messages fetches the chat backlog for a board, oldest first.
func (c *Client) Messages(ctx context.Context, boardID model.ID, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	q := url.Values{}
	q.Set("board_id", boardID.String())
	q.Set("limit", strconv.Itoa(limit))
	var out []model.Message
	err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &out)
	return out, err
}
