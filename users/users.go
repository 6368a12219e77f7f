package users

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrEmailRequired    = errors.New("a valid email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// Profile is the authenticated user as returned by the login and "me" endpoints.
type Profile struct {
	ID         int       `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	IsActive   bool      `json:"is_active"`
	DateJoined time.Time `json:"date_joined"`
}

// Registration holds the fields for creating a new account.
type Registration struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Validate performs the checks that can be made without the backend. Password
// strength rules are left to the server.
func (r Registration) Validate() error {
	if !strings.Contains(r.Email, "@") {
		return ErrEmailRequired
	}
	if r.Password == "" {
		return ErrPasswordRequired
	}
	if r.Password != r.Password2 {
		return ErrPasswordMismatch
	}
	return nil
}

// PasswordChange holds the fields for the change-password endpoint.
type PasswordChange struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	NewPassword2 string `json:"new_password2"`
}

func (p PasswordChange) Validate() error {
	if p.OldPassword == "" || p.NewPassword == "" {
		return ErrPasswordRequired
	}
	if p.NewPassword != p.NewPassword2 {
		return ErrPasswordMismatch
	}
	return nil
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body returned by a successful login.
type LoginResponse struct {
	Access  string  `json:"access"`
	Refresh string  `json:"refresh"`
	User    Profile `json:"user"`
}
