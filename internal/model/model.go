package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is a server identifier that may travel as a JSON number or a JSON string.
// Board and task ids are numeric in some deployments and opaque strings in others;
// comparisons always happen on the string form.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

func (id ID) numeric() bool {
	s := string(id)
	if s == "" || len(s) > 18 {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil && !strings.HasPrefix(s, "+") && (s == "0" || !strings.HasPrefix(s, "0"))
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: expected string or number, got %s", string(b))
	}
	*id = ID(n.String())
	return nil
}

type Board struct {
	ID          ID     `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Column struct {
	ID       ID     `json:"id"`
	BoardID  ID     `json:"board_id,omitempty"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type Task struct {
	ID          ID       `json:"id"`
	BoardID     ID       `json:"board_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status,omitempty"`
	ColumnID    ID       `json:"column_id,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

// Clone returns a deep copy (tags included).
func (t Task) Clone() Task {
	if t.Tags != nil {
		t.Tags = append(make([]string, 0, len(t.Tags)), t.Tags...)
	}
	return t
}

// Message is a chat message as delivered by the server. Immutable once received.
type Message struct {
	ID        ID        `json:"id"`
	BoardID   ID        `json:"board_id"`
	UserID    ID        `json:"user_id,omitempty"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthorKey identifies the author for roster purposes: user id when known, else display name.
func (m Message) AuthorKey() string {
	if !m.UserID.IsZero() {
		return "id:" + m.UserID.String()
	}
	return "name:" + strings.TrimSpace(m.Username)
}

// MessageRequest is the client-to-server chat send; server-assigned fields are omitted.
type MessageRequest struct {
	BoardID  ID       `json:"board_id"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

type Participant struct {
	Key      string `json:"key"`
	UserID   ID     `json:"user_id,omitempty"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type User struct {
	ID        ID     `json:"id,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user,omitempty"`
}
