package boardsync_test

import (
	"context"
	"errors"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/model"
)

var errServer = &api.StatusError{Code: 500, Message: "internal error"}

type mockRemote struct {
	columns []model.Column
	tasks   []model.Task

	createColumnFn func(ctx context.Context, in model.ColumnInput) (model.Column, error)
	updateColumnFn func(ctx context.Context, id model.ID, in model.ColumnInput) (model.Column, error)
	deleteColumnFn func(ctx context.Context, id model.ID) error
	createTaskFn   func(ctx context.Context, in model.TaskInput) (model.Task, error)
	updateTaskFn   func(ctx context.Context, id model.ID, patch model.TaskPatch) (model.Task, error)
	deleteTaskFn   func(ctx context.Context, id model.ID) error
}

func (m *mockRemote) Columns(context.Context, model.ID) ([]model.Column, error) {
	return m.columns, nil
}

func (m *mockRemote) Tasks(context.Context, model.ID) ([]model.Task, error) {
	return m.tasks, nil
}

func (m *mockRemote) CreateColumn(ctx context.Context, _ model.ID, in model.ColumnInput) (model.Column, error) {
	if m.createColumnFn != nil {
		return m.createColumnFn(ctx, in)
	}
	return model.Column{}, errors.New("unexpected CreateColumn")
}

func (m *mockRemote) UpdateColumn(ctx context.Context, _ model.ID, id model.ID, in model.ColumnInput) (model.Column, error) {
	if m.updateColumnFn != nil {
		return m.updateColumnFn(ctx, id, in)
	}
	return model.Column{}, errors.New("unexpected UpdateColumn")
}

func (m *mockRemote) DeleteColumn(ctx context.Context, _ model.ID, id model.ID) error {
	if m.deleteColumnFn != nil {
		return m.deleteColumnFn(ctx, id)
	}
	return errors.New("unexpected DeleteColumn")
}

func (m *mockRemote) CreateTask(ctx context.Context, _ model.ID, in model.TaskInput) (model.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, in)
	}
	return model.Task{}, errors.New("unexpected CreateTask")
}

func (m *mockRemote) UpdateTask(ctx context.Context, _ model.ID, id model.ID, patch model.TaskPatch) (model.Task, error) {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, id, patch)
	}
	return model.Task{}, errors.New("unexpected UpdateTask")
}

func (m *mockRemote) DeleteTask(ctx context.Context, _ model.ID, id model.ID) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, id)
	}
	return errors.New("unexpected DeleteTask")
}
