package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/config"
	"kanchat-cli/internal/format"
	"kanchat-cli/internal/logging"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/store"

	"github.com/spf13/cobra"
)

type App struct {
	APIURL     string
	Board      string
	StatusMode string
	PrettyJSON bool
	Format     string

	cfg     *config.Config
	session *auth.Session
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "kanchat",
		Short:        "Kanban boards with real-time chat (CLI + TUI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Open the board view (columns + chat)
  kanchat --board 12

  # Scriptable commands
  kanchat tasks list --board 12
  kanchat tasks move 7 done --board 12

  # Follow the board chat as ndjson
  kanchat chat tail --board 12

  # Shortcut for: kanchat --board 12
  kanchat 12
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := app.config()
		if err != nil {
			return writeErr(cmd, err)
		}
		// The TUI redirects logging to a file itself.
		logging.Setup(cfg, cmd.ErrOrStderr())
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api", envOr("KANCHAT_API_URL", ""), "REST base URL (default from ~/.kanchat/config.json or http://localhost:8888)")
	cmd.PersistentFlags().StringVar(&app.Board, "board", envOr("KANCHAT_BOARD", ""), "Board id (default: currentBoard in config.json)")
	cmd.PersistentFlags().StringVar(&app.StatusMode, "status-mode", envOr("KANCHAT_STATUS_MODE", ""), "How task status is represented (enum|columns)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("KANCHAT_FORMAT", format.JSON), "Output format (json|ndjson)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newRegisterCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newBoardsCmd(app))
	cmd.AddCommand(newColumnsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newChatCmd(app))

	return cmd
}

// config resolves configuration once per invocation; flags win over the
// environment and config.json.
func (app *App) config() (config.Config, error) {
	if app.cfg != nil {
		return *app.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v := strings.TrimSpace(app.APIURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(app.Board); v != "" {
		cfg.Board = v
	}
	if v := strings.TrimSpace(app.StatusMode); v != "" {
		cfg.StatusMode = config.StatusMode(v)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	app.cfg = &cfg
	return cfg, nil
}

// authSession prefers KANCHAT_TOKEN over the persisted login.
func (app *App) authSession() (*auth.Session, error) {
	if app.session != nil {
		return app.session, nil
	}
	cfg, err := app.config()
	if err != nil {
		return nil, err
	}
	if cfg.Token != "" {
		app.session = auth.NewStaticSession(cfg.Token)
		return app.session, nil
	}
	s, err := auth.NewSession(store.SessionFileStore{})
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	app.session = s
	return s, nil
}

func (app *App) client() (*api.Client, error) {
	cfg, err := app.config()
	if err != nil {
		return nil, err
	}
	s, err := app.authSession()
	if err != nil {
		return nil, err
	}
	return api.New(cfg.APIURL, s), nil
}

func (app *App) boardID() (model.ID, error) {
	cfg, err := app.config()
	if err != nil {
		return "", err
	}
	id := model.ID(strings.TrimSpace(cfg.Board))
	if id.IsZero() {
		return "", errors.New("no board selected; pass --board <id> or run `kanchat boards use <id>`")
	}
	return id, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), userMessage(err))
	return err
}
