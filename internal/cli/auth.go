package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"kanchat-cli/internal/api"
	"kanchat-cli/internal/auth"
	"kanchat-cli/internal/model"
	"kanchat-cli/internal/store"

	"github.com/spf13/cobra"
)

// loginClient always persists to session.json, even when KANCHAT_TOKEN is set.
func loginClient(app *App) (*api.Client, *auth.Session, error) {
	cfg, err := app.config()
	if err != nil {
		return nil, nil, err
	}
	s, err := auth.NewSession(store.SessionFileStore{})
	if err != nil {
		return nil, nil, err
	}
	app.session = s
	return api.New(cfg.APIURL, s), s, nil
}

// loginError keeps a rejected login from reading like an expired session.
func loginError(err error) error {
	var se *api.StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		return fmt.Errorf("login failed: %s", se.Message)
	}
	return err
}

func newLoginCmd(app *App) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" || password == "" {
				return writeErr(cmd, errors.New("--email and --password are required"))
			}
			c, s, err := loginClient(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if _, err := c.Login(cmd.Context(), email, password); err != nil {
				return writeErr(cmd, loginError(err))
			}
			return writeOut(cmd, app, s.User())
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", envOr("KANCHAT_PASSWORD", ""), "Account password (or KANCHAT_PASSWORD)")
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var in model.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Email = strings.TrimSpace(in.Email)
			in.Username = strings.TrimSpace(in.Username)
			if in.Email == "" || in.Password == "" || in.Username == "" {
				return writeErr(cmd, errors.New("--username, --email and --password are required"))
			}
			c, s, err := loginClient(app)
			if err != nil {
				return writeErr(cmd, err)
			}
			if _, err := c.Register(cmd.Context(), in); err != nil {
				return writeErr(cmd, loginError(err))
			}
			return writeOut(cmd, app, s.User())
		},
	}

	cmd.Flags().StringVar(&in.Username, "username", "", "Username")
	cmd.Flags().StringVar(&in.Firstname, "firstname", "", "First name")
	cmd.Flags().StringVar(&in.Lastname, "lastname", "", "Last name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&in.Password, "password", envOr("KANCHAT_PASSWORD", ""), "Account password (or KANCHAT_PASSWORD)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := auth.NewSession(store.SessionFileStore{})
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.Logout(); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]bool{"loggedOut": true})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.client()
			if err != nil {
				return writeErr(cmd, err)
			}
			if _, err := c.Session.RequireToken(); err != nil {
				return writeErr(cmd, err)
			}
			if offline {
				return writeOut(cmd, app, c.Session.User())
			}
			u, err := c.Profile(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := c.Session.SetUser(u); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, u)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Read the user from the stored session instead of the server")
	return cmd
}
