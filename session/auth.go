package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-meetings-client/credentials"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/jrsteele09/go-meetings-client/users"
)

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

// Login exchanges email and password for a credential pair, stores it and
// returns the user's profile. Stored credentials are untouched on failure.
func (c *Client) Login(ctx context.Context, email, password string) (*users.Profile, error) {
	if email == "" || password == "" {
		return nil, apperrors.ErrMissingPassword
	}

	resp, err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      RouteLogin,
		Body:      users.LoginRequest{Email: email, Password: password},
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}

	var login users.LoginResponse
	if err := resp.Decode(&login); err != nil {
		return nil, err
	}
	pair := credentials.Pair{Access: login.Access, Refresh: login.Refresh}
	if !pair.Complete() {
		return nil, fmt.Errorf("login response is missing tokens")
	}

	c.mu.Lock()
	c.generation++
	err = c.store.Save(pair)
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}

	c.logger.Info().Str("email", login.User.Email).Msg("logged in")
	return &login.User, nil
}

// Register creates a new account. It does not log the new user in.
func (c *Client) Register(ctx context.Context, registration users.Registration) (*users.Profile, error) {
	resp, err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      RouteRegister,
		Body:      registration,
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}

	var profile users.Profile
	if err := resp.Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Logout asks the backend to revoke the refresh token, ignoring any failure,
// then clears the stored credentials. Only a failure to clear local storage is
// returned. A refresh still in flight when Logout runs is discarded.
func (c *Client) Logout(ctx context.Context) error {
	pair, err := c.store.Load()
	if err != nil {
		c.logger.Err(err).Msg("Logout: failed to load credentials")
	}

	if pair.Refresh != "" {
		if _, err := c.Do(ctx, &Request{
			Method:  http.MethodPost,
			Path:    RouteLogout,
			Body:    logoutRequest{Refresh: pair.Refresh},
			NoRetry: true,
		}); err != nil {
			c.logger.Err(err).Msg("Logout: failed to revoke refresh token")
		}
	}

	c.mu.Lock()
	c.generation++
	err = c.store.Clear()
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// CurrentUser fetches the profile for the stored access token.
func (c *Client) CurrentUser(ctx context.Context) (*users.Profile, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: RouteMe})
	if err != nil {
		return nil, err
	}

	var profile users.Profile
	if err := resp.Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RestoreSession resumes a session from persisted credentials at startup.
// With nothing stored it returns ErrNotLoggedIn. When the backend rejects the
// credentials they are cleared and ErrNotLoggedIn is returned wrapping the
// cause; other failures such as network errors leave the credentials in place.
func (c *Client) RestoreSession(ctx context.Context) (*users.Profile, error) {
	pair, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	if pair.Access == "" {
		return nil, apperrors.ErrNotLoggedIn
	}

	profile, err := c.CurrentUser(ctx)
	if err == nil {
		return profile, nil
	}
	if apperrors.Is(err, ErrUnauthorized) || apperrors.Is(err, ErrForbidden) || apperrors.Is(err, apperrors.ErrSessionExpired) {
		c.mu.Lock()
		c.generation++
		clearErr := c.store.Clear()
		c.mu.Unlock()
		if clearErr != nil {
			c.logger.Err(clearErr).Msg("RestoreSession: failed to clear credentials")
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrNotLoggedIn, err)
	}
	return nil, err
}

// ChangePassword changes the authenticated user's password.
func (c *Client) ChangePassword(ctx context.Context, change users.PasswordChange) error {
	_, err := c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   RouteChangePassword,
		Body:   change,
	})
	return err
}
