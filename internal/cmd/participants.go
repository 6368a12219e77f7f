package cmd

import (
	"fmt"
	"strconv"

	"github.com/jrsteele09/go-meetings-client/meetings"
	"github.com/spf13/cobra"
)

var participantsCmd = &cobra.Command{
	Use:     "participants",
	Aliases: []string{"p"},
	Short:   "Manage who is invited to a meeting",
	Long: `Manage who is invited to a meeting.

Examples:
  meetctl participants list <meeting-id>
  meetctl participants add <meeting-id> --email grace@example.com --name "Grace Hopper"
  meetctl participants status <meeting-id> <participant-id> accepted`,
}

func participantID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid participant id %q", arg)
	}
	return id, nil
}

var participantsListCmd = &cobra.Command{
	Use:   "list <meeting-id>",
	Short: "List a meeting's participants",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		list, err := c.meetings.ListParticipants(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(cmd, list)
	},
}

var participantsAddCmd = &cobra.Command{
	Use:   "add <meeting-id>",
	Short: "Invite someone to a meeting",
	Args:  exactArgsWith(1, "<meeting-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")

		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		p, err := c.meetings.AddParticipant(cmd.Context(), args[0], meetings.Invitee{Email: email, Name: name})
		if err != nil {
			return err
		}
		return printResult(cmd, p)
	},
}

var participantsRemoveCmd = &cobra.Command{
	Use:   "remove <meeting-id> <participant-id>",
	Short: "Remove a participant",
	Args:  exactArgsWith(2, "<meeting-id> <participant-id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := participantID(args[1])
		if err != nil {
			return err
		}
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		if err := c.meetings.RemoveParticipant(cmd.Context(), args[0], id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed participant %d\n", id)
		return nil
	},
}

var participantsStatusCmd = &cobra.Command{
	Use:   "status <meeting-id> <participant-id> <invited|accepted|declined|tentative>",
	Short: "Record an RSVP",
	Args:  exactArgsWith(3, "<meeting-id> <participant-id> <status>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := participantID(args[1])
		if err != nil {
			return err
		}
		c, err := newClients(cmd)
		if err != nil {
			return err
		}
		p, err := c.meetings.UpdateParticipantStatus(cmd.Context(), args[0], id, meetings.ParticipantStatus(args[2]))
		if err != nil {
			return err
		}
		return printResult(cmd, p)
	},
}

func init() {
	participantsAddCmd.Flags().String("email", "", "participant email")
	participantsAddCmd.Flags().String("name", "", "participant display name")

	participantsCmd.AddCommand(participantsListCmd, participantsAddCmd, participantsRemoveCmd, participantsStatusCmd)
	rootCmd.AddCommand(participantsCmd)
}
