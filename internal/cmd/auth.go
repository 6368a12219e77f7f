package cmd

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-meetings-client/credentials"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/jrsteele09/go-meetings-client/users"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the login session",
	Long: `Manage the login session.

Subcommands:
  register         Create a new account (does not log in)
  login            Log in and store the credential pair
  logout           Revoke the refresh token and forget the credentials
  whoami           Show the logged in user
  status           Inspect the stored access token without calling the API
  change-password  Change the account password

Examples:
  meetctl auth login --email ada@example.com --password s3cret
  meetctl auth whoami -o yaml`,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		confirm, _ := cmd.Flags().GetString("password2")
		if confirm == "" {
			confirm = password
		}

		registration := users.Registration{Email: email, Username: username, Password: password, Password2: confirm}
		if err := registration.Validate(); err != nil {
			return err
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		profile, err := c.session.Register(cmd.Context(), registration)
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		return printResult(cmd, profile)
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" {
			return fmt.Errorf("--email is required")
		}
		if password == "" {
			return fmt.Errorf("--password is required")
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		profile, err := c.session.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		return printResult(cmd, profile)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		if err := c.session.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Logged out.")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		profile, err := c.session.RestoreSession(cmd.Context())
		if apperrors.Is(err, apperrors.ErrNotLoggedIn) {
			return fmt.Errorf("not logged in, run `meetctl auth login`")
		}
		if err != nil {
			return err
		}
		return printResult(cmd, profile)
	},
}

type authStatus struct {
	LoggedIn    bool       `json:"logged_in"`
	Credentials string     `json:"credentials"`
	UserID      string     `json:"user_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AccessValid bool       `json:"access_valid"`
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Inspect the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		pair, err := c.store.Load()
		if err != nil {
			return err
		}

		status := authStatus{LoggedIn: pair.Complete(), Credentials: c.store.Path()}
		if token := pair.Token(); token != nil {
			status.AccessValid = token.Valid()
		}
		if claims, err := credentials.ParseAccessClaims(pair.Access); err == nil {
			status.UserID = claims.UserID
			if !claims.ExpiresAt.IsZero() {
				status.ExpiresAt = &claims.ExpiresAt
			}
		}
		return printResult(cmd, status)
	},
}

var authChangePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change the account password",
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPassword, _ := cmd.Flags().GetString("old")
		newPassword, _ := cmd.Flags().GetString("new")
		confirm, _ := cmd.Flags().GetString("confirm")
		if confirm == "" {
			confirm = newPassword
		}

		change := users.PasswordChange{OldPassword: oldPassword, NewPassword: newPassword, NewPassword2: confirm}
		if err := change.Validate(); err != nil {
			return err
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		if err := c.session.ChangePassword(cmd.Context(), change); err != nil {
			return fmt.Errorf("password change failed: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Password changed.")
		return nil
	},
}

func init() {
	authRegisterCmd.Flags().String("email", "", "account email")
	authRegisterCmd.Flags().String("username", "", "account username")
	authRegisterCmd.Flags().String("password", "", "account password")
	authRegisterCmd.Flags().String("password2", "", "password confirmation (defaults to --password)")

	authLoginCmd.Flags().String("email", "", "account email")
	authLoginCmd.Flags().String("password", "", "account password")

	authChangePasswordCmd.Flags().String("old", "", "current password")
	authChangePasswordCmd.Flags().String("new", "", "new password")
	authChangePasswordCmd.Flags().String("confirm", "", "new password confirmation (defaults to --new)")

	authCmd.AddCommand(authRegisterCmd, authLoginCmd, authLogoutCmd, authWhoamiCmd, authStatusCmd, authChangePasswordCmd)
	rootCmd.AddCommand(authCmd)
}
