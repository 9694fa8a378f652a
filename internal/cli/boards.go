package cli

import (
	"errors"
	"strings"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/store"

	"github.com/spf13/cobra"
)

func newBoardsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boards",
		Short: "Board commands",
	}
	cmd.AddCommand(newBoardsListCmd(app))
	cmd.AddCommand(newBoardsShowCmd(app))
	cmd.AddCommand(newBoardsCreateCmd(app))
	cmd.AddCommand(newBoardsUpdateCmd(app))
	cmd.AddCommand(newBoardsDeleteCmd(app))
	cmd.AddCommand(newBoardsUseCmd(app))
	return cmd
}

func newBoardsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List boards",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			boards, err := c.Boards(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if boards == nil {
				boards = []model.Board{}
			}
			return writeOut(cmd, app, boards)
		},
	}
}

func newBoardsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <board-id>",
		Short: "Show a board with its columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			id := model.ID(strings.TrimSpace(args[0]))
			b, err := c.Board(cmd.Context(), id)
			if err != nil {
				if api.IsNotFound(err) {
					return writeErr(cmd, errNotFound("board", id.String()))
				}
				return writeErr(cmd, err)
			}
			eng, err := loadEngine(cmd, app, c, id)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()
			st := eng.State()
			return writeOut(cmd, app, map[string]any{
				"board":   b,
				"columns": st.Columns,
				"tasks":   st.Tasks,
			})
		},
	}
}

func newBoardsCreateCmd(app *App) *cobra.Command {
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.BoardInput{Title: strings.TrimSpace(title)}
			if in.Title == "" {
				return writeErr(cmd, errors.New("--title is required"))
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			b, err := c.CreateBoard(cmd.Context(), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, b)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Board title")
	cmd.Flags().StringVar(&description, "description", "", "Board description")
	return cmd
}

func newBoardsUpdateCmd(app *App) *cobra.Command {
	var title string
	var description string

	cmd := &cobra.Command{
		Use:   "update <board-id>",
		Short: "Rename a board or change its description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.BoardInput{Title: strings.TrimSpace(title)}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			if in.Title == "" && in.Description == nil {
				return writeErr(cmd, errors.New("nothing to update; pass --title and/or --description"))
			}
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			b, err := c.UpdateBoard(cmd.Context(), model.ID(strings.TrimSpace(args[0])), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, b)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}

func newBoardsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <board-id>",
		Short: "Delete a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			id := model.ID(strings.TrimSpace(args[0]))
			if err := c.DeleteBoard(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": id})
		},
	}
}

func newBoardsUseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "use <board-id>",
		Short: "Set the default board (stored in ~/.kanchat/config.json)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return writeErr(cmd, errors.New("board id is required"))
			}
			fc, err := store.LoadConfig()
			if err != nil {
				return writeErr(cmd, err)
			}
			fc.CurrentBoard = id
			if err := store.SaveConfig(fc); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"currentBoard": model.ID(id)})
		},
	}
}
