package cli

import (
	"errors"
	"strings"

	"kanchat-cli/internal/model"
	"kanchat-cli/internal/statusutil"

	"github.com/spf13/cobra"
)

func newColumnsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Column commands (the board comes from --board)",
	}
	cmd.AddCommand(newColumnsListCmd(app))
	cmd.AddCommand(newColumnsCreateCmd(app))
	cmd.AddCommand(newColumnsUpdateCmd(app))
	cmd.AddCommand(newColumnsDeleteCmd(app))
	return cmd
}

func newColumnsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List columns in board order",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()
			return writeOut(cmd, app, eng.State().Columns)
		},
	}
}

func newColumnsCreateCmd(app *App) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Append a column to the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return writeErr(cmd, errors.New("--title is required"))
			}
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			c, err := eng.CreateColumn(cmd.Context(), title)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, c)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Column title")
	return cmd
}

func newColumnsUpdateCmd(app *App) *cobra.Command {
	var title string
	var position int

	cmd := &cobra.Command{
		Use:   "update <column>",
		Short: "Rename or reposition a column (by id or title)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := model.ColumnInput{Title: strings.TrimSpace(title)}
			if cmd.Flags().Changed("position") {
				in.Position = &position
			}
			if in.Title == "" && in.Position == nil {
				return writeErr(cmd, errors.New("nothing to update; pass --title and/or --position"))
			}
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			col, ok := statusutil.FindColumn(args[0], eng.State().Columns)
			if !ok {
				return writeErr(cmd, errNotFound("column", args[0]))
			}
			c, err := eng.UpdateColumn(cmd.Context(), col.ID, in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, c)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().IntVar(&position, "position", 0, "New position")
	return cmd
}

func newColumnsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <column>",
		Short: "Delete a column (by id or title)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := boardEngine(cmd, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer eng.Close()

			col, ok := statusutil.FindColumn(args[0], eng.State().Columns)
			if !ok {
				return writeErr(cmd, errNotFound("column", args[0]))
			}
			if err := eng.DeleteColumn(cmd.Context(), col.ID); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"deleted": col.ID})
		},
	}
}
