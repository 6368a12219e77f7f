package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-meetings-client/internal/fakebackend"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const (
	cliEmail    = "ada@example.com"
	cliPassword = "s3cret-pass"
	cliGuest    = "grace@example.com"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// resetFlags restores every flag to its default so package level commands can
// be executed repeatedly.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

func setup(t *testing.T) (*fakebackend.Backend, string) {
	t.Helper()
	folder := t.TempDir()
	t.Setenv("MEETCTL_DATA_FOLDER", folder)
	t.Setenv("MEETCTL_STORE_KEY", "")
	t.Setenv("ENV", "TEST")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CONFLICT_CHECK_DELAY", "10ms")

	backend := fakebackend.New(t)
	backend.AddUser(cliEmail, cliPassword)
	backend.AddUser(cliGuest, cliPassword)
	return backend, folder
}

func run(t *testing.T, backend *fakebackend.Backend, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--api-url", backend.URL()}, args...))

	err := rootCmd.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func login(t *testing.T, backend *fakebackend.Backend) {
	t.Helper()
	res := run(t, backend, "", "auth", "login", "--email", cliEmail, "--password", cliPassword)
	require.NoError(t, res.err, res.stderr)
}

func subcommandNames(c *cobra.Command) []string {
	var names []string
	for _, child := range c.Commands() {
		names = append(names, child.Name())
	}
	return names
}

func TestCommandTree(t *testing.T) {
	require.Subset(t, subcommandNames(rootCmd), []string{"auth", "meetings", "participants", "version"})
	require.Subset(t, subcommandNames(authCmd), []string{"register", "login", "logout", "whoami", "status", "change-password"})
	require.Subset(t, subcommandNames(meetingsCmd), []string{
		"list", "get", "create", "update", "delete", "cancel", "export",
		"calendar", "conflicts", "watch-conflicts", "notify", "notifications",
	})
	require.Subset(t, subcommandNames(participantsCmd), []string{"list", "add", "remove", "status"})
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("output"))
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("api-url"))
}

func TestAuthLifecycle(t *testing.T) {
	backend, folder := setup(t)

	res := run(t, backend, "", "auth", "whoami")
	require.ErrorContains(t, res.err, "not logged in")

	login(t, backend)
	_, err := os.Stat(filepath.Join(folder, "credentials.json"))
	require.NoError(t, err)

	res = run(t, backend, "", "auth", "whoami")
	require.NoError(t, res.err)
	var profile map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &profile))
	require.Equal(t, cliEmail, profile["email"])

	res = run(t, backend, "", "auth", "status", "-o", "yaml")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "logged_in: true")
	require.Contains(t, res.stdout, "access_valid: true")
	require.Contains(t, res.stdout, `user_id: "1"`)

	res = run(t, backend, "", "auth", "logout")
	require.NoError(t, res.err)
	require.Equal(t, 1, backend.LogoutCalls())

	res = run(t, backend, "", "auth", "status")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"logged_in": false`)
}

func TestRegisterAndChangePassword(t *testing.T) {
	backend, _ := setup(t)

	res := run(t, backend, "", "auth", "register", "--email", "new@example.com", "--username", "newbie", "--password", "pw-one")
	require.NoError(t, res.err, res.stderr)
	require.Contains(t, res.stdout, `"username": "newbie"`)

	res = run(t, backend, "", "auth", "register", "--email", "bad", "--password", "x")
	require.Error(t, res.err)

	login(t, backend)
	res = run(t, backend, "", "auth", "change-password", "--old", cliPassword, "--new", "another-pass")
	require.NoError(t, res.err, res.stderr)

	res = run(t, backend, "", "auth", "login", "--email", cliEmail, "--password", "another-pass")
	require.NoError(t, res.err)
}

func TestMeetingsCommands(t *testing.T) {
	backend, _ := setup(t)
	login(t, backend)

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	res := run(t, backend, "", "meetings", "create",
		"--title", "Design review",
		"--start", start.Format(time.RFC3339),
		"--end", start.Add(time.Hour).Format(time.RFC3339),
		"--participant", cliGuest,
	)
	require.NoError(t, res.err, res.stderr)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &created))
	require.NotEmpty(t, created.ID)

	res = run(t, backend, "", "meetings", "list", "-o", "yaml", "--status", "scheduled")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "title: Design review")

	res = run(t, backend, "", "meetings", "update", created.ID, "--location", "Room 4")
	require.NoError(t, res.err, res.stderr)
	require.Contains(t, res.stdout, `"location": "Room 4"`)
	require.Contains(t, res.stdout, `"title": "Design review"`)

	dir := t.TempDir()
	res = run(t, backend, "", "meetings", "export", created.ID, "--dir", dir)
	require.NoError(t, res.err, res.stderr)
	content, err := os.ReadFile(filepath.Join(dir, created.ID+"-Design_review.ics"))
	require.NoError(t, err)
	require.Contains(t, string(content), "SUMMARY:Design review")

	res = run(t, backend, "", "meetings", "calendar", "--file", "-")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "BEGIN:VCALENDAR")

	res = run(t, backend, "", "meetings", "notify", created.ID, "--type", "invitation")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, cliGuest)

	res = run(t, backend, "", "meetings", "notifications", created.ID)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"notification_type": "invitation"`)

	res = run(t, backend, "", "meetings", "conflicts",
		"--start", start.Add(30*time.Minute).Format(time.RFC3339),
		"--end", start.Add(90*time.Minute).Format(time.RFC3339),
		"--email", cliGuest,
	)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"has_conflicts": true`)

	res = run(t, backend, "", "meetings", "cancel", created.ID)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"status": "cancelled"`)

	res = run(t, backend, "", "meetings", "delete", created.ID)
	require.NoError(t, res.err)

	res = run(t, backend, "", "meetings", "get", created.ID)
	require.ErrorContains(t, res.err, "No Meeting matches the given query.")

	res = run(t, backend, "", "meetings", "get")
	require.ErrorContains(t, res.err, "usage:")
}

func TestParticipantsCommands(t *testing.T) {
	backend, _ := setup(t)
	login(t, backend)
	start := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour)
	id := backend.AddMeeting(cliEmail, "Planning", start, start.Add(time.Hour))

	res := run(t, backend, "", "participants", "add", id, "--email", cliGuest, "--name", "Grace")
	require.NoError(t, res.err, res.stderr)
	var added struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &added))

	pid := strconv.Itoa(added.ID)
	res = run(t, backend, "", "participants", "status", id, pid, "tentative")
	require.NoError(t, res.err, res.stderr)
	require.Contains(t, res.stdout, `"status": "tentative"`)

	res = run(t, backend, "", "participants", "list", id)
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, cliGuest)

	res = run(t, backend, "", "participants", "remove", id, pid)
	require.NoError(t, res.err)

	res = run(t, backend, "", "participants", "remove", id, "abc")
	require.ErrorContains(t, res.err, "invalid participant id")
}

func TestWatchConflicts(t *testing.T) {
	backend, _ := setup(t)
	login(t, backend)
	start := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
	busy := backend.AddMeeting(cliEmail, "Busy", start, start.Add(time.Hour), cliGuest)

	draft := func(emails ...string) string {
		line, err := json.Marshal(map[string]any{
			"start_time": start.Add(30 * time.Minute),
			"end_time":   start.Add(2 * time.Hour),
			"emails":     emails,
		})
		require.NoError(t, err)
		return string(line)
	}
	stdin := strings.Join([]string{draft("gr"), draft("grace"), draft(cliGuest)}, "\n")

	res := run(t, backend, stdin, "meetings", "watch-conflicts")
	require.NoError(t, res.err, res.stderr)
	require.Contains(t, res.stdout, busy)
	require.Equal(t, 1, backend.Hits("/api/meetings/check-conflicts/"))
}

func TestSessionExpiredHint(t *testing.T) {
	backend, _ := setup(t)
	login(t, backend)
	backend.ExpireAccessTokens()
	backend.RevokeRefreshTokens()

	res := run(t, backend, "", "meetings", "list")
	require.Error(t, res.err)
	require.Contains(t, res.stderr, sessionExpiredHint)

	res = run(t, backend, "", "auth", "status")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, `"logged_in": false`)
}

func TestSealedCredentials(t *testing.T) {
	backend, folder := setup(t)
	t.Setenv("MEETCTL_STORE_KEY", "correct horse battery staple")
	login(t, backend)

	data, err := os.ReadFile(filepath.Join(folder, "credentials.json"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "access_token")

	res := run(t, backend, "", "auth", "whoami")
	require.NoError(t, res.err)
}

func TestOutputFormatAndVersion(t *testing.T) {
	backend, _ := setup(t)

	res := run(t, backend, "", "version", "-o", "xml")
	require.ErrorContains(t, res.err, "unsupported output format")

	res = run(t, backend, "", "version", "-o", "yaml")
	require.NoError(t, res.err)
	require.Contains(t, res.stdout, "version: dev")
}
