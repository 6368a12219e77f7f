// Package fakebackend serves an in-memory copy of the meetings REST API over
// httptest for package tests. Access tokens are real HS256 JWTs so the client
// can read their claims.
package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-meetings-client/users"
	"github.com/rs/zerolog"
)

const signingSecret = "fakebackend-secret"

type account struct {
	profile  users.Profile
	password string
}

// Backend is a fake meetings API. All exported methods are safe for
// concurrent use with in-flight requests.
type Backend struct {
	server *httptest.Server
	tokens *tokenIssuer
	logger zerolog.Logger

	mu            sync.Mutex
	accounts      map[string]*account // email -> account
	access        map[string]int      // valid access token -> user id
	refresh       map[string]int      // valid refresh token -> user id
	meetings      map[string]*meeting
	participantID int
	notifications map[string][]notification

	refreshCalls int
	logoutCalls  int
	hits         map[string]int
	authHeaders  map[string][]string

	refreshGate  chan struct{}
	releaseGate  func()
	refreshFails bool
	logoutFails  bool
	rotate       bool
	nextUserID   int
	now          func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger logs every request handled by the backend at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New starts a backend and registers its shutdown with t.Cleanup.
func New(t *testing.T, options ...Option) *Backend {
	t.Helper()

	b := &Backend{
		logger:        zerolog.Nop(),
		accounts:      make(map[string]*account),
		access:        make(map[string]int),
		refresh:       make(map[string]int),
		meetings:      make(map[string]*meeting),
		notifications: make(map[string][]notification),
		hits:          make(map[string]int),
		authHeaders:   make(map[string][]string),
		nextUserID:    1,
		now:           time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	b.tokens = newTokenIssuer(signingSecret, func() time.Time { return b.now() })
	b.server = httptest.NewServer(b.routes())
	t.Cleanup(b.Close)
	return b
}

// URL is the backend's base URL.
func (b *Backend) URL() string {
	return b.server.URL
}

func (b *Backend) Close() {
	b.mu.Lock()
	release := b.releaseGate
	b.mu.Unlock()
	if release != nil {
		release()
	}
	b.server.Close()
}

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register/{$}", b.handleRegister)
	mux.HandleFunc("POST /api/auth/login/{$}", b.handleLogin)
	mux.HandleFunc("POST /api/auth/logout/{$}", b.requireAuth(b.handleLogout))
	mux.HandleFunc("POST /api/auth/token/refresh/{$}", b.handleRefresh)
	mux.HandleFunc("GET /api/auth/me/{$}", b.requireAuth(b.handleMe))
	mux.HandleFunc("POST /api/auth/change-password/{$}", b.requireAuth(b.handleChangePassword))
	b.meetingRoutes(mux)

	return chainMiddleware(mux.ServeHTTP,
		loggingMiddleware(b.logger),
		recoverMiddleware(b.logger),
		b.recordMiddleware,
	)
}

// AddUser creates an account and returns its profile.
func (b *Backend) AddUser(email, password string) users.Profile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(email, strings.Split(email, "@")[0], password)
}

func (b *Backend) addUserLocked(email, username, password string) users.Profile {
	profile := users.Profile{
		ID:         b.nextUserID,
		Email:      email,
		Username:   username,
		IsActive:   true,
		DateJoined: b.now().UTC().Truncate(time.Second),
	}
	b.nextUserID++
	b.accounts[email] = &account{profile: profile, password: password}
	return profile
}

// IssueTokens returns a fresh valid pair for email without going through login.
func (b *Backend) IssueTokens(email string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.accounts[email]
	return b.mintAccessLocked(acct.profile.ID), b.mintRefreshLocked(acct.profile.ID)
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = make(map[string]int)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]int)
}

// HoldRefresh makes refresh requests block until the returned release func is
// called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	var once sync.Once
	release = func() {
		once.Do(func() { close(gate) })
	}

	b.mu.Lock()
	b.refreshGate = gate
	b.releaseGate = release
	b.mu.Unlock()
	return release
}

// FailRefresh makes the refresh endpoint reject every token.
func (b *Backend) FailRefresh(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshFails = fail
}

// FailLogout makes the logout endpoint return a server error.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutFails = fail
}

// RotateRefreshTokens makes the refresh endpoint return a new refresh token.
func (b *Backend) RotateRefreshTokens(rotate bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotate = rotate
}

func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func (b *Backend) LogoutCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logoutCalls
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// AuthHeaders returns the Authorization header of every request to path.
func (b *Backend) AuthHeaders(path string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders[path]...)
}

// ValidAccess reports whether token is a currently valid access token.
func (b *Backend) ValidAccess(token string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.access[token]
	return ok
}

// mintAccessLocked panics if signing fails; recoverMiddleware turns that into
// a 500 inside handlers.
func (b *Backend) mintAccessLocked(userID int) string {
	raw, err := b.tokens.createAccessToken(userID)
	if err != nil {
		panic(err)
	}
	b.access[raw] = userID
	return raw
}

func (b *Backend) mintRefreshLocked(userID int) string {
	token, err := b.tokens.createRefreshToken()
	if err != nil {
		panic(err)
	}
	b.refresh[token] = userID
	return token
}

// requireAuth rejects requests without a valid bearer token the way
// SimpleJWT does.
func (b *Backend) requireAuth(next func(w http.ResponseWriter, r *http.Request, user *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}

		b.mu.Lock()
		userID, valid := b.access[token]
		valid = valid && b.tokens.verifyAccessToken(token)
		var user *account
		for _, acct := range b.accounts {
			if acct.profile.ID == userID {
				user = acct
			}
		}
		b.mu.Unlock()

		if !valid || user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail":   "Given token not valid for any token type",
				"code":     "token_not_valid",
				"messages": []any{map[string]any{"token_class": "AccessToken", "message": "Token is invalid or expired"}},
			})
			return
		}
		next(w, r, user)
	}
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req users.Registration
	if !decode(w, r, &req) {
		return
	}

	fieldErrors := map[string][]string{}
	if req.Email == "" {
		fieldErrors["email"] = []string{"This field is required."}
	}
	if req.Username == "" {
		fieldErrors["username"] = []string{"This field is required."}
	}
	if req.Password == "" {
		fieldErrors["password"] = []string{"This field is required."}
	} else if req.Password != req.Password2 {
		fieldErrors["password"] = []string{"Passwords do not match."}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[req.Email]; exists {
		fieldErrors["email"] = append(fieldErrors["email"], "user with this email already exists.")
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors)
		return
	}
	writeJSON(w, http.StatusCreated, b.addUserLocked(req.Email, req.Username, req.Password))
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req users.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[req.Email]
	if !ok || acct.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "No active account found with the given credentials",
		})
		return
	}
	writeJSON(w, http.StatusOK, users.LoginResponse{
		Access:  b.mintAccessLocked(acct.profile.ID),
		Refresh: b.mintRefreshLocked(acct.profile.ID),
		User:    acct.profile,
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	b.refreshCalls++
	gate := b.refreshGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refresh[req.Refresh]
	if !ok || b.refreshFails {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	resp := map[string]string{"access": b.mintAccessLocked(userID)}
	if b.rotate {
		delete(b.refresh, req.Refresh)
		resp["refresh"] = b.mintRefreshLocked(userID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request, _ *account) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.logoutCalls++
	if b.logoutFails {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "blacklist unavailable"})
		return
	}
	delete(b.refresh, req.Refresh)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (b *Backend) handleMe(w http.ResponseWriter, _ *http.Request, user *account) {
	writeJSON(w, http.StatusOK, user.profile)
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request, user *account) {
	var req users.PasswordChange
	if !decode(w, r, &req) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.OldPassword != user.password {
		writeJSON(w, http.StatusBadRequest, map[string]any{"old_password": []string{"Old password is incorrect."}})
		return
	}
	if req.NewPassword != req.NewPassword2 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"new_password": []string{"Passwords do not match."}})
		return
	}
	user.password = req.NewPassword
	writeJSON(w, http.StatusOK, map[string]any{"detail": "Password changed successfully."})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "JSON parse error - " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
