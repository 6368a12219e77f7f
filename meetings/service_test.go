package meetings_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-meetings-client/credentials"
	"github.com/jrsteele09/go-meetings-client/credentials/memstore"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/jrsteele09/go-meetings-client/internal/fakebackend"
	"github.com/jrsteele09/go-meetings-client/meetings"
	"github.com/jrsteele09/go-meetings-client/session"
	"github.com/stretchr/testify/require"
)

const (
	organiser = "ada@example.com"
	guest     = "grace@example.com"
)

func newService(t *testing.T, email string) (*fakebackend.Backend, *meetings.Service) {
	t.Helper()
	backend := fakebackend.New(t)
	backend.AddUser(organiser, "pw")
	backend.AddUser(guest, "pw")
	return backend, serviceFor(t, backend, email)
}

func serviceFor(t *testing.T, backend *fakebackend.Backend, email string) *meetings.Service {
	t.Helper()
	access, refresh := backend.IssueTokens(email)
	client, err := session.New(backend.URL(), memstore.NewWithPair(credentials.Pair{Access: access, Refresh: refresh}))
	require.NoError(t, err)
	return meetings.NewService(client)
}

func tomorrowAt(hour int) time.Time {
	d := time.Now().UTC().Add(24 * time.Hour)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func TestCreateGetList(t *testing.T) {
	_, svc := newService(t, organiser)
	ctx := context.Background()

	created, err := svc.Create(ctx, meetings.Draft{
		Title:     "Design review",
		Location:  "Room 4",
		StartTime: tomorrowAt(10),
		EndTime:   tomorrowAt(11),
		Participants: []meetings.Invitee{
			{Email: guest, Name: "Grace"},
			{Email: "not-an-email"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, meetings.StatusScheduled, created.Status)
	require.Len(t, created.Participants, 1, "invitees without @ are dropped")
	require.Equal(t, 60, created.DurationMinutes)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Design review", got.Title)
	require.True(t, got.IsUpcoming)

	_, err = svc.Create(ctx, meetings.Draft{Title: "Standup", StartTime: tomorrowAt(9), EndTime: tomorrowAt(10)})
	require.NoError(t, err)

	list, err := svc.List(ctx, meetings.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Standup", list[0].Title)

	list, err = svc.List(ctx, meetings.ListFilter{Search: "design"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, list[0].ParticipantCount)

	list, err = svc.List(ctx, meetings.ListFilter{Ordering: "-start_time"})
	require.NoError(t, err)
	require.Equal(t, "Design review", list[0].Title)
}

func TestCreateKeepsCallerInvitees(t *testing.T) {
	_, svc := newService(t, organiser)

	invitees := []meetings.Invitee{{Email: "nobody"}, {Email: " " + guest + " "}}
	draft := meetings.Draft{
		Title:        "Retro",
		StartTime:    tomorrowAt(14),
		EndTime:      tomorrowAt(15),
		Participants: invitees,
	}
	created, err := svc.Create(context.Background(), draft)
	require.NoError(t, err)
	require.Len(t, created.Participants, 1)

	require.Equal(t, []meetings.Invitee{{Email: "nobody"}, {Email: " " + guest + " "}}, invitees)
	require.Equal(t, invitees, draft.Participants)
}

func TestGuestSeesInvitedMeeting(t *testing.T) {
	backend, svc := newService(t, organiser)
	ctx := context.Background()

	created, err := svc.Create(ctx, meetings.Draft{
		Title: "1:1", StartTime: tomorrowAt(14), EndTime: tomorrowAt(15),
		Participants: []meetings.Invitee{{Email: guest}},
	})
	require.NoError(t, err)

	guestSvc := serviceFor(t, backend, guest)
	got, err := guestSvc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, organiser, got.CreatedByEmail)

	_, err = guestSvc.Cancel(ctx, created.ID)
	require.ErrorIs(t, err, session.ErrForbidden)

	participants, err := guestSvc.ListParticipants(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)

	p, err := guestSvc.UpdateParticipantStatus(ctx, created.ID, participants[0].ID, meetings.ParticipantAccepted)
	require.NoError(t, err)
	require.Equal(t, meetings.ParticipantAccepted, p.Status)
	require.NotNil(t, p.RespondedAt)
}

func TestUpdateCancelDelete(t *testing.T) {
	_, svc := newService(t, organiser)
	ctx := context.Background()

	created, err := svc.Create(ctx, meetings.Draft{Title: "Retro", StartTime: tomorrowAt(16), EndTime: tomorrowAt(17)})
	require.NoError(t, err)

	title := "Sprint retro"
	updated, err := svc.Update(ctx, created.ID, meetings.Update{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, tomorrowAt(16), updated.StartTime.UTC())

	cancelled, err := svc.Cancel(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, meetings.StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, created.ID)
	require.ErrorIs(t, err, session.ErrValidation)
	require.Contains(t, err.Error(), "already cancelled")

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestInvalidInput(t *testing.T) {
	backend, svc := newService(t, organiser)
	ctx := context.Background()

	_, err := svc.Get(ctx, "42")
	require.ErrorIs(t, err, apperrors.ErrInvalidID)

	_, err = svc.Notify(ctx, uuid.NewString(), "shout")
	require.ErrorIs(t, err, apperrors.ErrInvalidType)

	_, err = svc.UpdateParticipantStatus(ctx, uuid.NewString(), 1, "maybe")
	require.ErrorIs(t, err, apperrors.ErrInvalidStatus)

	_, err = svc.Create(ctx, meetings.Draft{Title: "Backwards", StartTime: tomorrowAt(11), EndTime: tomorrowAt(10)})
	require.ErrorIs(t, err, apperrors.ErrInvalidRange)

	_, err = svc.AddParticipant(ctx, uuid.NewString(), meetings.Invitee{})
	require.Error(t, err)

	require.Zero(t, backend.Hits("/api/meetings/"))
}

func TestConflictsAndParticipants(t *testing.T) {
	backend, svc := newService(t, organiser)
	ctx := context.Background()

	busy := backend.AddMeeting(organiser, "Board meeting", tomorrowAt(10), tomorrowAt(12), guest)

	result, err := svc.CheckConflicts(ctx, meetings.ConflictQuery{
		StartTime:         tomorrowAt(11),
		EndTime:           tomorrowAt(13),
		ParticipantEmails: []string{guest, "free@example.com"},
	})
	require.NoError(t, err)
	require.True(t, result.HasConflicts)
	require.Len(t, result.Conflicts[guest], 1)
	require.Equal(t, busy, result.Conflicts[guest][0].ID)
	require.NotContains(t, result.Conflicts, "free@example.com")

	result, err = svc.CheckConflicts(ctx, meetings.ConflictQuery{
		StartTime:         tomorrowAt(11),
		EndTime:           tomorrowAt(13),
		ParticipantEmails: []string{guest},
		ExcludeMeetingID:  busy,
	})
	require.NoError(t, err)
	require.False(t, result.HasConflicts)
	require.NotNil(t, result.Conflicts)

	overlapping, err := svc.Create(ctx, meetings.Draft{Title: "Overlap", StartTime: tomorrowAt(11), EndTime: tomorrowAt(12)})
	require.NoError(t, err)
	_, err = svc.AddParticipant(ctx, overlapping.ID, meetings.Invitee{Email: guest})
	require.ErrorIs(t, err, session.ErrValidation)
	require.Contains(t, err.Error(), "scheduling conflict")

	added, err := svc.AddParticipant(ctx, overlapping.ID, meetings.Invitee{Email: "free@example.com", Name: "Free"})
	require.NoError(t, err)
	require.Equal(t, meetings.ParticipantInvited, added.Status)

	require.NoError(t, svc.RemoveParticipant(ctx, overlapping.ID, added.ID))
	participants, err := svc.ListParticipants(ctx, overlapping.ID)
	require.NoError(t, err)
	require.Empty(t, participants)
}

func TestNotify(t *testing.T) {
	backend, svc := newService(t, organiser)
	ctx := context.Background()
	id := backend.AddMeeting(organiser, "Planning", tomorrowAt(9), tomorrowAt(10), guest)

	results, err := svc.Notify(ctx, id, meetings.NotifyReminder)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{guest: true}, results)

	log, err := svc.Notifications(ctx, id)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, meetings.NotifyReminder, log[0].NotificationType)
	require.True(t, log[0].IsSent)
}

func TestCalendarExport(t *testing.T) {
	backend, svc := newService(t, organiser)
	ctx := context.Background()
	id := backend.AddMeeting(organiser, "Team sync", tomorrowAt(9), tomorrowAt(10))

	file, err := svc.ExportICS(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Team_sync.ics", file.Filename)
	require.True(t, strings.HasPrefix(string(file.Content), "BEGIN:VCALENDAR"))
	require.Contains(t, string(file.Content), "UID:"+id)

	file, err = svc.MyCalendar(ctx)
	require.NoError(t, err)
	require.Equal(t, "my_meetings.ics", file.Filename)
	require.Contains(t, string(file.Content), "SUMMARY:Team sync")
}

func TestServiceRefreshesTransparently(t *testing.T) {
	backend, svc := newService(t, organiser)
	backend.ExpireAccessTokens()

	_, err := svc.List(context.Background(), meetings.ListFilter{Status: meetings.StatusScheduled})
	require.NoError(t, err)
	require.Equal(t, 1, backend.RefreshCalls())
}
