package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-meetings-client/internal/config"
	"github.com/jrsteele09/go-meetings-client/internal/utils"
	"github.com/jrsteele09/go-meetings-client/meetings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	dateLayout   = "2006-01-02"
	exportLimit  = 4
	icsExtension = ".ics"
)

var meetingsCmd = &cobra.Command{
	Use:     "meetings",
	Aliases: []string{"m"},
	Short:   "List, schedule and manage meetings",
	Long: `List, schedule and manage meetings.

Times are RFC 3339 (2026-03-02T09:00:00Z); list date filters are YYYY-MM-DD.

Examples:
  meetctl meetings list --status scheduled --from 2026-03-01
  meetctl meetings create --title "Design review" --start 2026-03-02T09:00:00Z --end 2026-03-02T10:00:00Z --participant grace@example.com
  meetctl meetings export 3f2b8c1e-0d4a-4b5e-9f7a-1c2d3e4f5a6b --dir ./calendar`,
}

func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

var meetingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your meetings",
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		status, _ := cmd.Flags().GetString("status")
		ordering, _ := cmd.Flags().GetString("ordering")
		from, err := parseDateFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := parseDateFlag(cmd, "to")
		if err != nil {
			return err
		}
		if status != "" && !meetings.Status(status).Valid() {
			return fmt.Errorf("invalid --status %q", status)
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		list, err := c.meetings.List(cmd.Context(), meetings.ListFilter{
			Search:   search,
			Status:   meetings.Status(status),
			From:     from,
			To:       to,
			Ordering: ordering,
		})
		if err != nil {
			return err
		}
		return printResult(cmd, list)
	},
}

var meetingsGetCmd = &cobra.Command{
	Use:   "get <meeting-id>",
	Short: "Show a meeting with its participants",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		m, err := c.meetings.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, m)
	},
}

var meetingsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule a meeting",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		location, _ := cmd.Flags().GetString("location")
		emails, _ := cmd.Flags().GetStringSlice("participant")
		start, err := parseTimeFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseTimeFlag(cmd, "end")
		if err != nil {
			return err
		}

		draft := meetings.Draft{
			Title:       title,
			Description: description,
			Location:    location,
			StartTime:   start,
			EndTime:     end,
		}
		for _, email := range emails {
			draft.Participants = append(draft.Participants, meetings.Invitee{Email: email})
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		m, err := c.meetings.Create(cmd.Context(), draft)
		if err != nil {
			return err
		}
		return printResult(cmd, m)
	},
}

var meetingsUpdateCmd = &cobra.Command{
	Use:   "update <meeting-id>",
	Short: "Change a meeting; only the given flags are sent",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		var update meetings.Update
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			update.Title = &v
		}
		if flags.Changed("description") {
			v, _ := flags.GetString("description")
			update.Description = &v
		}
		if flags.Changed("location") {
			v, _ := flags.GetString("location")
			update.Location = &v
		}
		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			update.Status = utils.Ptr(meetings.Status(v))
		}
		if flags.Changed("start") {
			t, err := parseTimeFlag(cmd, "start")
			if err != nil {
				return err
			}
			update.StartTime = &t
		}
		if flags.Changed("end") {
			t, err := parseTimeFlag(cmd, "end")
			if err != nil {
				return err
			}
			update.EndTime = &t
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		m, err := c.meetings.Update(cmd.Context(), args[0], update)
		if err != nil {
			return err
		}
		return printResult(cmd, m)
	},
}

var meetingsDeleteCmd = &cobra.Command{
	Use:   "delete <meeting-id>",
	Short: "Delete a meeting",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		if err := c.meetings.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Deleted %s\n", args[0])
		return nil
	},
}

var meetingsCancelCmd = &cobra.Command{
	Use:   "cancel <meeting-id>",
	Short: "Cancel a scheduled meeting",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		m, err := c.meetings.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, m)
	},
}

var meetingsExportCmd = &cobra.Command{
	Use:   "export <meeting-id>...",
	Short: "Download meetings as iCalendar files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}

		written := make([]string, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(exportLimit)
		for i, id := range args {
			g.Go(func() error {
				file, err := c.meetings.ExportICS(ctx, id)
				if err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				path := filepath.Join(dir, id+"-"+filepath.Base(file.Filename))
				if err := os.WriteFile(path, file.Content, 0o644); err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				log.Debug().Str("meeting", id).Str("path", path).Msg("exported meeting")
				written[i] = path
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return printResult(cmd, written)
	},
}

var meetingsCalendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Download all upcoming meetings as one iCalendar file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		file, err := c.meetings.MyCalendar(cmd.Context())
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("file")
		if path == "-" {
			_, err := cmd.OutOrStdout().Write(file.Content)
			return err
		}
		if path == "" {
			path = filepath.Base(file.Filename)
		}
		if filepath.Ext(path) == "" {
			path += icsExtension
		}
		if err := os.WriteFile(path, file.Content, 0o644); err != nil {
			return err
		}
		return printResult(cmd, map[string]string{"file": path})
	},
}

var meetingsConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Check participants for overlapping meetings",
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, _ := cmd.Flags().GetStringSlice("email")
		exclude, _ := cmd.Flags().GetString("exclude")
		start, err := parseTimeFlag(cmd, "start")
		if err != nil {
			return err
		}
		end, err := parseTimeFlag(cmd, "end")
		if err != nil {
			return err
		}

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		result, err := c.meetings.CheckConflicts(cmd.Context(), meetings.ConflictQuery{
			StartTime:         start,
			EndTime:           end,
			ParticipantEmails: emails,
			ExcludeMeetingID:  exclude,
		})
		if err != nil {
			return err
		}
		return printResult(cmd, result)
	},
}

// draftEdit is one line of input to "meetings watch-conflicts".
type draftEdit struct {
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Emails           []string  `json:"emails"`
	ExcludeMeetingID string    `json:"exclude_meeting_id"`
}

var meetingsWatchConflictsCmd = &cobra.Command{
	Use:   "watch-conflicts",
	Short: "Preview conflicts for a draft edited line by line on stdin",
	Long: `Reads one JSON draft per line from stdin, for example

  {"start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z","emails":["grace@example.com"]}

and prints the conflicts of the latest draft once edits pause for
$CONFLICT_CHECK_DELAY. Drafts without both times or a valid email report
no conflicts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}

		results := make(chan map[string][]meetings.ConflictingMeeting, 16)
		watcher := meetings.NewConflictWatcher(c.meetings, config.New().GetConflictCheckDelay(),
			func(conflicts map[string][]meetings.ConflictingMeeting) {
				results <- conflicts
			},
			meetings.WithWatcherLogger(log.Logger),
		)

		printed := make(chan error, 1)
		go func() {
			var err error
			for conflicts := range results {
				if err == nil {
					err = printResult(cmd, conflicts)
				}
			}
			printed <- err
		}()

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if cmd.Context().Err() != nil {
				break
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var edit draftEdit
			if err := json.Unmarshal(line, &edit); err != nil {
				log.Warn().Err(err).Msg("skipping malformed draft")
				continue
			}
			watcher.Update(meetings.ConflictDraft{
				StartTime:        edit.StartTime,
				EndTime:          edit.EndTime,
				Emails:           edit.Emails,
				ExcludeMeetingID: edit.ExcludeMeetingID,
			})
		}
		scanErr := scanner.Err()

		watcher.Flush()
		watcher.Close()
		close(results)
		if err := <-printed; err != nil {
			return err
		}
		return scanErr
	},
}

var meetingsNotifyCmd = &cobra.Command{
	Use:   "notify <meeting-id>",
	Short: "Send a notification to every participant",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("type")

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		results, err := c.meetings.Notify(cmd.Context(), args[0], meetings.NotificationType(kind))
		if err != nil {
			return err
		}
		return printResult(cmd, results)
	},
}

var meetingsNotificationsCmd = &cobra.Command{
	Use:   "notifications <meeting-id>",
	Short: "Show the notifications sent for a meeting",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		list, err := c.meetings.Notifications(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, list)
	},
}

func init() {
	meetingsListCmd.Flags().String("search", "", "search title, description and location")
	meetingsListCmd.Flags().String("status", "", "scheduled, cancelled or completed")
	meetingsListCmd.Flags().String("from", "", "only meetings starting on or after this date")
	meetingsListCmd.Flags().String("to", "", "only meetings ending on or before this date")
	meetingsListCmd.Flags().String("ordering", "", "start_time, end_time or title; prefix - to reverse")

	for _, c := range []*cobra.Command{meetingsCreateCmd, meetingsUpdateCmd} {
		c.Flags().String("title", "", "meeting title")
		c.Flags().String("description", "", "meeting description")
		c.Flags().String("location", "", "meeting location")
		c.Flags().String("start", "", "start time (RFC 3339)")
		c.Flags().String("end", "", "end time (RFC 3339)")
	}
	meetingsCreateCmd.Flags().StringSlice("participant", nil, "participant email (repeatable)")
	meetingsUpdateCmd.Flags().String("status", "", "scheduled, cancelled or completed")

	meetingsExportCmd.Flags().String("dir", ".", "directory to write .ics files to")
	meetingsCalendarCmd.Flags().String("file", "", "output file, - for stdout (default: name sent by the server)")

	meetingsConflictsCmd.Flags().String("start", "", "start time (RFC 3339)")
	meetingsConflictsCmd.Flags().String("end", "", "end time (RFC 3339)")
	meetingsConflictsCmd.Flags().StringSlice("email", nil, "participant email (repeatable)")
	meetingsConflictsCmd.Flags().String("exclude", "", "meeting id to ignore, when editing an existing meeting")

	meetingsNotifyCmd.Flags().String("type", string(meetings.NotifyReminder), "invitation, update, cancellation or reminder")

	meetingsCmd.AddCommand(
		meetingsListCmd,
		meetingsGetCmd,
		meetingsCreateCmd,
		meetingsUpdateCmd,
		meetingsDeleteCmd,
		meetingsCancelCmd,
		meetingsExportCmd,
		meetingsCalendarCmd,
		meetingsConflictsCmd,
		meetingsWatchConflictsCmd,
		meetingsNotifyCmd,
		meetingsNotificationsCmd,
	)
	rootCmd.AddCommand(meetingsCmd)
}
