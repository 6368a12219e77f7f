package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-meetings-client/credentials"
	"github.com/jrsteele09/go-meetings-client/internal/config"
	"github.com/jrsteele09/go-meetings-client/meetings"
	"github.com/jrsteele09/go-meetings-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const sessionExpiredHint = "session expired, run `meetctl auth login`"

var (
	outputFormat string
	apiURL       string
)

var rootCmd = &cobra.Command{
	Use:   "meetctl",
	Short: "Command line client for the meeting scheduler",
	Long: `meetctl talks to the meeting scheduler API.

Credentials from "meetctl auth login" are kept in $MEETCTL_DATA_FOLDER
(default ~/.meetctl) and refreshed automatically when the access token expires.
Set MEETCTL_STORE_KEY to keep them sealed on disk.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case formatJSON, formatYAML:
		default:
			return fmt.Errorf("unsupported output format %q (use json or yaml)", outputFormat)
		}
		setupLogger(config.New(), cmd.ErrOrStderr())
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx passed to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatJSON, "output format: json or yaml")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "meetings API base URL (default $MEETINGS_API_URL)")
}

func setupLogger(c config.EnvConfig, w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.GetLogLevel()))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == "DEV" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// clients bundles what a command needs to talk to the backend.
type clients struct {
	store    *credentials.FileStore
	session  *session.Client
	meetings *meetings.Service
}

func newClients(cmd *cobra.Command) (*clients, error) {
	c := config.New()

	var options []credentials.FileStoreOption
	if key := c.GetStoreKey(); key != "" {
		options = append(options, credentials.WithPassphrase(key))
	}
	store, err := credentials.NewFileStore(c.GetDataFolder(), options...)
	if err != nil {
		return nil, err
	}

	baseURL := apiURL
	if baseURL == "" {
		baseURL = c.GetBaseURL()
	}
	stderr := cmd.ErrOrStderr()
	client, err := session.New(baseURL, store,
		session.WithTimeout(c.GetHTTPTimeout()),
		session.WithLogger(log.Logger),
		session.OnSessionInvalidated(func(error) {
			fmt.Fprintln(stderr, sessionExpiredHint)
		}),
	)
	if err != nil {
		return nil, err
	}
	return &clients{store: store, session: client, meetings: meetings.NewService(client)}, nil
}

func exactArgsWith(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s %s", cmd.CommandPath(), usage)
		}
		return nil
	}
}
