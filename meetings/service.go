package meetings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/jrsteele09/go-meetings-client/session"
)

const (
	routeMeetings       = "/api/meetings/"
	routeMyCalendar     = "/api/meetings/my-calendar/"
	routeCheckConflicts = "/api/meetings/check-conflicts/"
)

// Doer sends requests through an authenticated session.
type Doer interface {
	Do(ctx context.Context, req *session.Request) (*session.Response, error)
}

// Service exposes the meetings, participants and notification endpoints.
type Service struct {
	client Doer
}

func NewService(client Doer) *Service {
	return &Service{client: client}
}

func meetingPath(id string, parts ...string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrInvalidID, "meeting %q", id)
	}
	path := routeMeetings + parsed.String() + "/"
	for _, part := range parts {
		path += part + "/"
	}
	return path, nil
}

// page is the paginated list envelope; bare arrays are accepted too.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

func decodeList[T any](resp *session.Response) ([]T, error) {
	var items []T
	if err := json.Unmarshal(resp.Body, &items); err == nil {
		return items, nil
	}
	var p page[T]
	if err := resp.Decode(&p); err != nil {
		return nil, err
	}
	return p.Results, nil
}

func (s *Service) call(ctx context.Context, method, path string, body any, out any) error {
	resp, err := s.client.Do(ctx, &session.Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// List returns the meetings the user created or participates in.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Summary, error) {
	resp, err := s.client.Do(ctx, &session.Request{
		Method: http.MethodGet,
		Path:   routeMeetings,
		Query:  filter.Query(),
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Summary](resp)
}

func (s *Service) Get(ctx context.Context, id string) (*Meeting, error) {
	path, err := meetingPath(id)
	if err != nil {
		return nil, err
	}
	var m Meeting
	if err := s.call(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Create(ctx context.Context, draft Draft) (*Meeting, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	var m Meeting
	if err := s.call(ctx, http.MethodPost, routeMeetings, draft, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Update(ctx context.Context, id string, update Update) (*Meeting, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	path, err := meetingPath(id)
	if err != nil {
		return nil, err
	}
	var m Meeting
	if err := s.call(ctx, http.MethodPatch, path, update, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	path, err := meetingPath(id)
	if err != nil {
		return err
	}
	return s.call(ctx, http.MethodDelete, path, nil, nil)
}

// Cancel cancels a scheduled meeting; only its organiser may do so.
func (s *Service) Cancel(ctx context.Context, id string) (*Meeting, error) {
	path, err := meetingPath(id, "cancel")
	if err != nil {
		return nil, err
	}
	var m Meeting
	if err := s.call(ctx, http.MethodPost, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ExportICS downloads a single meeting as an iCalendar file.
func (s *Service) ExportICS(ctx context.Context, id string) (*CalendarFile, error) {
	path, err := meetingPath(id, "export-ics")
	if err != nil {
		return nil, err
	}
	return s.download(ctx, path, id+".ics")
}

// MyCalendar downloads every upcoming scheduled meeting as one iCalendar file.
func (s *Service) MyCalendar(ctx context.Context) (*CalendarFile, error) {
	return s.download(ctx, routeMyCalendar, "my_meetings.ics")
}

func (s *Service) download(ctx context.Context, path, fallbackName string) (*CalendarFile, error) {
	header := http.Header{}
	header.Set("Accept", "text/calendar")
	resp, err := s.client.Do(ctx, &session.Request{Method: http.MethodGet, Path: path, Header: header})
	if err != nil {
		return nil, err
	}
	name := resp.Filename()
	if name == "" {
		name = fallbackName
	}
	return &CalendarFile{Filename: name, Content: resp.Body}, nil
}

// CheckConflicts asks the backend which participants are busy in the window.
func (s *Service) CheckConflicts(ctx context.Context, query ConflictQuery) (*ConflictResult, error) {
	if !query.EndTime.After(query.StartTime) {
		return nil, apperrors.ErrInvalidRange
	}
	if len(query.ParticipantEmails) == 0 {
		return nil, fmt.Errorf("at least one participant email is required")
	}
	if query.ExcludeMeetingID != "" {
		if _, err := uuid.Parse(query.ExcludeMeetingID); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidID, "exclude meeting %q", query.ExcludeMeetingID)
		}
	}

	var result ConflictResult
	if err := s.call(ctx, http.MethodPost, routeCheckConflicts, query, &result); err != nil {
		return nil, err
	}
	if result.Conflicts == nil {
		result.Conflicts = map[string][]ConflictingMeeting{}
	}
	return &result, nil
}

// Notify sends a notification of the given type to every participant and
// returns the per-email delivery result.
func (s *Service) Notify(ctx context.Context, id string, kind NotificationType) (map[string]bool, error) {
	if !kind.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidType, "%q", kind)
	}
	path, err := meetingPath(id, "notify")
	if err != nil {
		return nil, err
	}
	var out struct {
		Results map[string]bool `json:"results"`
	}
	if err := s.call(ctx, http.MethodPost, path, map[string]NotificationType{"type": kind}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Notifications returns the notification log of a meeting.
func (s *Service) Notifications(ctx context.Context, id string) ([]Notification, error) {
	path, err := meetingPath(id, "notifications")
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, &session.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return decodeList[Notification](resp)
}

func (s *Service) ListParticipants(ctx context.Context, meetingID string) ([]Participant, error) {
	path, err := meetingPath(meetingID, "participants")
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(ctx, &session.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	return decodeList[Participant](resp)
}

// AddParticipant invites someone to a meeting. The backend rejects invitees
// with a scheduling conflict as a validation failure.
func (s *Service) AddParticipant(ctx context.Context, meetingID string, invitee Invitee) (*Participant, error) {
	if invitee.Email == "" {
		return nil, fmt.Errorf("participant email is required")
	}
	path, err := meetingPath(meetingID, "participants")
	if err != nil {
		return nil, err
	}
	var p Participant
	if err := s.call(ctx, http.MethodPost, path, invitee, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) RemoveParticipant(ctx context.Context, meetingID string, participantID int) error {
	path, err := meetingPath(meetingID, "participants", strconv.Itoa(participantID))
	if err != nil {
		return err
	}
	return s.call(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateParticipantStatus records an RSVP.
func (s *Service) UpdateParticipantStatus(ctx context.Context, meetingID string, participantID int, status ParticipantStatus) (*Participant, error) {
	if !status.Valid() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidStatus, "%q", status)
	}
	path, err := meetingPath(meetingID, "participants", strconv.Itoa(participantID), "status")
	if err != nil {
		return nil, err
	}
	var p Participant
	if err := s.call(ctx, http.MethodPatch, path, map[string]ParticipantStatus{"status": status}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
