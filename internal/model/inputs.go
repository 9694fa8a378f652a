package model

type BoardInput struct {
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ColumnInput struct {
	Title    string `json:"title,omitempty"`
	Position *int   `json:"position,omitempty"`
}

type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`
	ColumnID    ID     `json:"column_id,omitempty"`
}

// TaskPatch is a partial update; nil fields are left untouched by the server.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	ColumnID    *ID     `json:"column_id,omitempty"`
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.ColumnID == nil
}

// ApplyTo returns t with the patch applied (t itself is not modified).
func (p TaskPatch) ApplyTo(t Task) Task {
	t = t.Clone()
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ColumnID != nil {
		t.ColumnID = *p.ColumnID
	}
	return t
}

type RegisterInput struct {
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}
