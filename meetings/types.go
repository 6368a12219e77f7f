package meetings

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type ParticipantStatus string

const (
	ParticipantInvited   ParticipantStatus = "invited"
	ParticipantAccepted  ParticipantStatus = "accepted"
	ParticipantDeclined  ParticipantStatus = "declined"
	ParticipantTentative ParticipantStatus = "tentative"
)

func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantInvited, ParticipantAccepted, ParticipantDeclined, ParticipantTentative:
		return true
	}
	return false
}

type NotificationType string

const (
	NotifyInvitation   NotificationType = "invitation"
	NotifyUpdate       NotificationType = "update"
	NotifyCancellation NotificationType = "cancellation"
	NotifyReminder     NotificationType = "reminder"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotifyInvitation, NotifyUpdate, NotifyCancellation, NotifyReminder:
		return true
	}
	return false
}

// Summary is a meeting as returned by the list endpoint.
type Summary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Location         string    `json:"location"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Status           Status    `json:"status"`
	ParticipantCount int       `json:"participant_count"`
	CreatedByEmail   string    `json:"created_by_email"`
	DurationMinutes  int       `json:"duration_minutes"`
}

// Meeting is the full meeting representation including participants. The
// create endpoint echoes only the submitted fields, so ID may be empty there.
type Meeting struct {
	ID              string        `json:"id,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Location        string        `json:"location"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          Status        `json:"status"`
	CreatedBy       int           `json:"created_by,omitempty"`
	CreatedByEmail  string        `json:"created_by_email,omitempty"`
	Participants    []Participant `json:"participants"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	IsUpcoming      bool          `json:"is_upcoming,omitempty"`
	CreatedAt       *time.Time    `json:"created_at,omitempty"`
	UpdatedAt       *time.Time    `json:"updated_at,omitempty"`
}

type Participant struct {
	ID          int               `json:"id,omitempty"`
	Meeting     string            `json:"meeting,omitempty"`
	User        *int              `json:"user"`
	Email       string            `json:"email"`
	Name        string            `json:"name"`
	Status      ParticipantStatus `json:"status,omitempty"`
	InvitedAt   *time.Time        `json:"invited_at,omitempty"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
}

// Invitee is a participant to add to a meeting.
type Invitee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	User  *int   `json:"user,omitempty"`
}

// Draft is the body for creating a meeting.
type Draft struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       Status    `json:"status,omitempty"`
	Participants []Invitee `json:"participants,omitempty"`
}

// Validate checks what the client can check before sending. Only invitees
// whose email contains "@" are kept, matching the meeting form.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if d.StartTime.IsZero() || d.EndTime.IsZero() {
		return fmt.Errorf("start and end time are required")
	}
	if !d.EndTime.After(d.StartTime) {
		return apperrors.ErrInvalidRange
	}
	if d.Status != "" && !d.Status.Valid() {
		return apperrors.Wrapf(apperrors.ErrInvalidStatus, "%q", d.Status)
	}

	invitees := make([]Invitee, 0, len(d.Participants))
	for _, p := range d.Participants {
		p.Email = strings.TrimSpace(p.Email)
		if strings.Contains(p.Email, "@") {
			invitees = append(invitees, p)
		}
	}
	d.Participants = invitees
	return nil
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Status      *Status    `json:"status,omitempty"`
}

func (u Update) Validate() error {
	if u.StartTime != nil && u.EndTime != nil && !u.EndTime.After(*u.StartTime) {
		return apperrors.ErrInvalidRange
	}
	if u.Status != nil && !u.Status.Valid() {
		return apperrors.Wrapf(apperrors.ErrInvalidStatus, "%q", *u.Status)
	}
	return nil
}

// ListFilter holds the list endpoint's query filters. Zero values are omitted.
type ListFilter struct {
	Search   string
	Status   Status
	From     time.Time
	To       time.Time
	Ordering string
}

const dateLayout = "2006-01-02"

func (f ListFilter) Query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if !f.From.IsZero() {
		q.Set("from_date", f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		q.Set("to_date", f.To.Format(dateLayout))
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	return q
}

// ConflictQuery is the body of the conflict-check endpoint.
type ConflictQuery struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	ParticipantEmails []string  `json:"participant_emails"`
	ExcludeMeetingID  string    `json:"exclude_meeting_id,omitempty"`
}

type ConflictingMeeting struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ConflictResult maps each conflicting participant email to the meetings it
// overlaps.
type ConflictResult struct {
	HasConflicts bool                            `json:"has_conflicts"`
	Conflicts    map[string][]ConflictingMeeting `json:"conflicts"`
}

type Notification struct {
	ID               int              `json:"id"`
	Meeting          string           `json:"meeting"`
	Email            string           `json:"email"`
	NotificationType NotificationType `json:"notification_type"`
	Message          string           `json:"message"`
	IsSent           bool             `json:"is_sent"`
	SentAt           time.Time        `json:"sent_at"`
}

// CalendarFile is a downloaded iCalendar document.
type CalendarFile struct {
	Filename string
	Content  []byte
}
