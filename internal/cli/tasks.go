package cli

import (
	"errors"
	"strings"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/boardsync"
	"kanchat-cli/internal/config"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/notify"
	"kanchat-cli/internal/statusutil"

	"github.com/spf13/cobra"
)

// loadEngine builds a board sync engine for one invocation and loads the board.
func loadEngine(cmd *cobra.Command, app *App, c *api.Client, boardID model.ID) (*boardsync.Engine, error) {
	cfg, err := app.config()
	if err != nil {
		return nil, err
	}
	eng := boardsync.New(boardsync.Options{
		BoardID: boardID,
		Remote:  c,
		Mode:    cfg.StatusMode,
		Notify:  notify.NewRelay(),
	})
	if err := eng.Load(cmd.Context()); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// boardEngine resolves --board, the client and a loaded engine.
func boardEngine(cmd *cobra.Command, app *App) (*boardsync.Engine, error) {
	boardID, err := app.boardID()
	if err != nil {
		return nil, err
	}
	c, err := app.client()
	if err != nil {
		return nil, err
	}
	if _, err := c.Session.RequireToken(); err != nil {
		return nil, err
	}
	return loadEngine(cmd, app, c, boardID)
}

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Task commands (the board comes from --board)",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksUpdateCmd(app))
	cmd.AddCommand(newTasksMoveCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	return cmd
}

func newTasksListCmd(app *App) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			st := eng.State()
			if strings.TrimSpace(in) == "" {
				return writeOut(cmd, app, st.Tasks)
			}
			status, colID, err := statusutil.Normalizer{Mode: eng.Mode()}.Target(in, st.Columns)
			if err != nil {
				return writeErr(cmd, err)
			}
			out := []model.Task{}
			for _, t := range st.Tasks {
				if eng.Mode() == config.StatusModeColumns && t.ColumnID != colID {
					continue
				}
				if eng.Mode() != config.StatusModeColumns && t.Status != status {
					continue
				}
				out = append(out, t)
			}
			return writeOut(cmd, app, out)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Only tasks in this status or column (id or title)")
	return cmd
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var title string
	var description string
	var in string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return writeErr(cmd, errors.New("--title is required"))
			}
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			ti := model.TaskInput{Title: title, Description: strings.TrimSpace(description)}
			if strings.TrimSpace(in) != "" {
				status, colID, err := statusutil.Normalizer{Mode: eng.Mode()}.Target(in, eng.State().Columns)
				if err != nil {
					return writeErr(cmd, err)
				}
				ti.Status = status
				ti.ColumnID = colID
			}
			t, err := eng.CreateTask(cmd.Context(), ti)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Task title")
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().StringVar(&in, "in", "", "Initial status or column (default: first column)")
	return cmd
}

func newTasksUpdateCmd(app *App) *cobra.Command {
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's title or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.TaskPatch
			if cmd.Flags().Changed("title") {
				t := strings.TrimSpace(title)
				if t == "" {
					return writeErr(cmd, errors.New("--title cannot be empty"))
				}
				patch.Title = &t
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			t, err := eng.UpdateTask(cmd.Context(), model.ID(strings.TrimSpace(args[0])), patch)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}

func newTasksMoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <task-id> <status|column>",
		Short: "Move a task to another status or column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			t, err := eng.MoveTask(cmd.Context(), model.ID(strings.TrimSpace(args[0])), args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, t)
		},
	}
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			id := model.ID(strings.TrimSpace(args[0]))
			if err := eng.DeleteTask(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": id})
		},
	}
}
