package fakebackend

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type participant struct {
	ID          int        `json:"id"`
	Meeting     string     `json:"meeting"`
	User        *int       `json:"user"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	InvitedAt   time.Time  `json:"invited_at"`
	RespondedAt *time.Time `json:"responded_at"`
}

type meeting struct {
	ID           string
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	Status       string
	CreatedBy    int
	CreatedEmail string
	Participants []*participant
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type notification struct {
	ID               int       `json:"id"`
	Meeting          string    `json:"meeting"`
	Email            string    `json:"email"`
	NotificationType string    `json:"notification_type"`
	Message          string    `json:"message"`
	IsSent           bool      `json:"is_sent"`
	SentAt           time.Time `json:"sent_at"`
}

func (m *meeting) summary() map[string]any {
	return map[string]any{
		"id":                m.ID,
		"title":             m.Title,
		"location":          m.Location,
		"start_time":        m.StartTime,
		"end_time":          m.EndTime,
		"status":            m.Status,
		"participant_count": len(m.Participants),
		"created_by_email":  m.CreatedEmail,
		"duration_minutes":  int(m.EndTime.Sub(m.StartTime).Minutes()),
	}
}

func (m *meeting) detail(now time.Time) map[string]any {
	participants := make([]*participant, len(m.Participants))
	copy(participants, m.Participants)
	return map[string]any{
		"id":               m.ID,
		"title":            m.Title,
		"description":      m.Description,
		"location":         m.Location,
		"start_time":       m.StartTime,
		"end_time":         m.EndTime,
		"status":           m.Status,
		"created_by":       m.CreatedBy,
		"created_by_email": m.CreatedEmail,
		"participants":     participants,
		"duration_minutes": int(m.EndTime.Sub(m.StartTime).Minutes()),
		"is_upcoming":      m.StartTime.After(now) && m.Status == "scheduled",
		"created_at":       m.CreatedAt,
		"updated_at":       m.UpdatedAt,
	}
}

func (m *meeting) involves(acct *account) bool {
	if m.CreatedBy == acct.profile.ID {
		return true
	}
	for _, p := range m.Participants {
		if p.Email == acct.profile.Email {
			return true
		}
	}
	return false
}

func (b *Backend) meetingRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/meetings/{$}", b.requireAuth(b.handleListMeetings))
	mux.HandleFunc("POST /api/meetings/{$}", b.requireAuth(b.handleCreateMeeting))
	mux.HandleFunc("GET /api/meetings/my-calendar/{$}", b.requireAuth(b.handleMyCalendar))
	mux.HandleFunc("POST /api/meetings/check-conflicts/{$}", b.requireAuth(b.handleCheckConflicts))
	mux.HandleFunc("GET /api/meetings/{id}/{$}", b.requireAuth(b.withMeeting(b.handleGetMeeting)))
	mux.HandleFunc("PATCH /api/meetings/{id}/{$}", b.requireAuth(b.withMeeting(b.handleUpdateMeeting)))
	mux.HandleFunc("DELETE /api/meetings/{id}/{$}", b.requireAuth(b.withMeeting(b.handleDeleteMeeting)))
	mux.HandleFunc("POST /api/meetings/{id}/cancel/{$}", b.requireAuth(b.withMeeting(b.handleCancelMeeting)))
	mux.HandleFunc("GET /api/meetings/{id}/export-ics/{$}", b.requireAuth(b.withMeeting(b.handleExportICS)))
	mux.HandleFunc("POST /api/meetings/{id}/notify/{$}", b.requireAuth(b.withMeeting(b.handleNotify)))
	mux.HandleFunc("GET /api/meetings/{id}/notifications/{$}", b.requireAuth(b.withMeeting(b.handleNotifications)))
	mux.HandleFunc("GET /api/meetings/{id}/participants/{$}", b.requireAuth(b.withMeeting(b.handleListParticipants)))
	mux.HandleFunc("POST /api/meetings/{id}/participants/{$}", b.requireAuth(b.withMeeting(b.handleAddParticipant)))
	mux.HandleFunc("DELETE /api/meetings/{id}/participants/{pid}/{$}", b.requireAuth(b.withMeeting(b.handleRemoveParticipant)))
	mux.HandleFunc("PATCH /api/meetings/{id}/participants/{pid}/status/{$}", b.requireAuth(b.withMeeting(b.handleParticipantStatus)))
}

type meetingHandler func(w http.ResponseWriter, r *http.Request, user *account, m *meeting)

// withMeeting resolves {id} to a meeting visible to the user. Handlers run
// with b.mu held.
func (b *Backend) withMeeting(next meetingHandler) func(http.ResponseWriter, *http.Request, *account) {
	return func(w http.ResponseWriter, r *http.Request, user *account) {
		b.mu.Lock()
		defer b.mu.Unlock()
		m, ok := b.meetings[r.PathValue("id")]
		if !ok || !m.involves(user) {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "No Meeting matches the given query."})
			return
		}
		next(w, r, user, m)
	}
}

func forbidden(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusForbidden, map[string]any{"detail": detail})
}

// AddMeeting stores a scheduled meeting owned by ownerEmail and returns its id.
func (b *Backend) AddMeeting(ownerEmail, title string, start, end time.Time, participantEmails ...string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	owner := b.accounts[ownerEmail]
	m := &meeting{
		ID:           uuid.NewString(),
		Title:        title,
		StartTime:    start.UTC(),
		EndTime:      end.UTC(),
		Status:       "scheduled",
		CreatedBy:    owner.profile.ID,
		CreatedEmail: ownerEmail,
		CreatedAt:    b.now().UTC(),
		UpdatedAt:    b.now().UTC(),
	}
	for _, email := range participantEmails {
		b.addParticipantLocked(m, email, "")
	}
	b.meetings[m.ID] = m
	return m.ID
}

func (b *Backend) addParticipantLocked(m *meeting, email, name string) *participant {
	b.participantID++
	p := &participant{
		ID:        b.participantID,
		Meeting:   m.ID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Name:      name,
		Status:    "invited",
		InvitedAt: b.now().UTC(),
	}
	if acct, ok := b.accounts[p.Email]; ok {
		id := acct.profile.ID
		p.User = &id
	}
	m.Participants = append(m.Participants, p)
	return p
}

func (b *Backend) handleListMeetings(w http.ResponseWriter, r *http.Request, user *account) {
	q := r.URL.Query()
	b.mu.Lock()
	defer b.mu.Unlock()

	var list []*meeting
	for _, m := range b.meetings {
		if !m.involves(user) {
			continue
		}
		if status := q.Get("status"); status != "" && m.Status != status {
			continue
		}
		if search := strings.ToLower(q.Get("search")); search != "" &&
			!strings.Contains(strings.ToLower(m.Title+" "+m.Description+" "+m.Location), search) {
			continue
		}
		if from := q.Get("from_date"); from != "" && m.StartTime.Format("2006-01-02") < from {
			continue
		}
		if to := q.Get("to_date"); to != "" && m.EndTime.Format("2006-01-02") > to {
			continue
		}
		list = append(list, m)
	}

	ordering := q.Get("ordering")
	desc := strings.HasPrefix(ordering, "-")
	field := strings.TrimPrefix(ordering, "-")
	sort.Slice(list, func(i, j int) bool {
		var less bool
		switch field {
		case "title":
			less = list[i].Title < list[j].Title
		case "end_time":
			less = list[i].EndTime.Before(list[j].EndTime)
		default:
			less = list[i].StartTime.Before(list[j].StartTime)
		}
		if desc {
			return !less
		}
		return less
	})

	results := make([]map[string]any, 0, len(list))
	for _, m := range list {
		results = append(results, m.summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(results),
		"next":     nil,
		"previous": nil,
		"results":  results,
	})
}

type meetingBody struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Location     *string    `json:"location"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       *string    `json:"status"`
	Participants []struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"participants"`
}

func (b *Backend) handleCreateMeeting(w http.ResponseWriter, r *http.Request, user *account) {
	var body meetingBody
	if !decode(w, r, &body) {
		return
	}
	if body.Title == nil || body.StartTime == nil || body.EndTime == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"title": []string{"This field is required."}})
		return
	}
	if !body.EndTime.After(*body.StartTime) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"end_time": []string{"End time must be after start time."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m := &meeting{
		ID:           uuid.NewString(),
		Title:        *body.Title,
		StartTime:    body.StartTime.UTC(),
		EndTime:      body.EndTime.UTC(),
		Status:       "scheduled",
		CreatedBy:    user.profile.ID,
		CreatedEmail: user.profile.Email,
		CreatedAt:    b.now().UTC(),
		UpdatedAt:    b.now().UTC(),
	}
	if body.Description != nil {
		m.Description = *body.Description
	}
	if body.Location != nil {
		m.Location = *body.Location
	}
	if body.Status != nil {
		m.Status = *body.Status
	}
	for _, p := range body.Participants {
		b.addParticipantLocked(m, p.Email, p.Name)
	}
	b.meetings[m.ID] = m
	writeJSON(w, http.StatusCreated, m.detail(b.now()))
}

func (b *Backend) handleGetMeeting(w http.ResponseWriter, _ *http.Request, _ *account, m *meeting) {
	writeJSON(w, http.StatusOK, m.detail(b.now()))
}

func (b *Backend) handleUpdateMeeting(w http.ResponseWriter, r *http.Request, user *account, m *meeting) {
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the meeting organiser can edit it.")
		return
	}
	var body meetingBody
	if !decode(w, r, &body) {
		return
	}
	if body.Title != nil {
		m.Title = *body.Title
	}
	if body.Description != nil {
		m.Description = *body.Description
	}
	if body.Location != nil {
		m.Location = *body.Location
	}
	if body.StartTime != nil {
		m.StartTime = body.StartTime.UTC()
	}
	if body.EndTime != nil {
		m.EndTime = body.EndTime.UTC()
	}
	if body.Status != nil {
		m.Status = *body.Status
	}
	m.UpdatedAt = b.now().UTC()
	writeJSON(w, http.StatusOK, m.detail(b.now()))
}

func (b *Backend) handleDeleteMeeting(w http.ResponseWriter, _ *http.Request, user *account, m *meeting) {
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the meeting organiser can delete it.")
		return
	}
	delete(b.meetings, m.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleCancelMeeting(w http.ResponseWriter, _ *http.Request, user *account, m *meeting) {
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the organiser can cancel this meeting.")
		return
	}
	if m.Status == "cancelled" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Meeting is already cancelled."})
		return
	}
	m.Status = "cancelled"
	m.UpdatedAt = b.now().UTC()
	writeJSON(w, http.StatusOK, m.detail(b.now()))
}

func icsFor(list ...*meeting) []byte {
	var sb strings.Builder
	sb.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Meeting Scheduler//EN\r\n")
	for _, m := range list {
		fmt.Fprintf(&sb, "BEGIN:VEVENT\r\nUID:%s\r\nSUMMARY:%s\r\nDTSTART:%s\r\nDTEND:%s\r\nEND:VEVENT\r\n",
			m.ID, m.Title, m.StartTime.Format("20060102T150405Z"), m.EndTime.Format("20060102T150405Z"))
	}
	sb.WriteString("END:VCALENDAR\r\n")
	return []byte(sb.String())
}

func writeICS(w http.ResponseWriter, filename string, content []byte) {
	w.Header().Set("Content-Type", "text/calendar")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (b *Backend) handleExportICS(w http.ResponseWriter, _ *http.Request, _ *account, m *meeting) {
	safe := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, m.Title)
	writeICS(w, safe+".ics", icsFor(m))
}

func (b *Backend) handleMyCalendar(w http.ResponseWriter, _ *http.Request, user *account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var upcoming []*meeting
	for _, m := range b.meetings {
		if m.involves(user) && m.Status == "scheduled" && m.StartTime.After(b.now()) {
			upcoming = append(upcoming, m)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].StartTime.Before(upcoming[j].StartTime) })
	writeICS(w, "my_meetings.ics", icsFor(upcoming...))
}

func (b *Backend) handleCheckConflicts(w http.ResponseWriter, r *http.Request, _ *account) {
	var body struct {
		StartTime         time.Time `json:"start_time"`
		EndTime           time.Time `json:"end_time"`
		ParticipantEmails []string  `json:"participant_emails"`
		ExcludeMeetingID  string    `json:"exclude_meeting_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	if len(body.ParticipantEmails) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"participant_emails": []string{"This list may not be empty."}})
		return
	}
	if !body.EndTime.After(body.StartTime) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"end_time must be after start_time."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	conflicts := map[string][]map[string]any{}
	for _, email := range body.ParticipantEmails {
		for _, m := range b.meetings {
			if m.ID == body.ExcludeMeetingID || m.Status != "scheduled" {
				continue
			}
			if !m.StartTime.Before(body.EndTime) || !m.EndTime.After(body.StartTime) {
				continue
			}
			if !b.attendsLocked(m, email) {
				continue
			}
			conflicts[email] = append(conflicts[email], map[string]any{
				"id":         m.ID,
				"title":      m.Title,
				"start_time": m.StartTime.Format(time.RFC3339),
				"end_time":   m.EndTime.Format(time.RFC3339),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"has_conflicts": len(conflicts) > 0, "conflicts": conflicts})
}

func (b *Backend) attendsLocked(m *meeting, email string) bool {
	if m.CreatedEmail == email {
		return true
	}
	for _, p := range m.Participants {
		if p.Email == email && p.Status != "declined" {
			return true
		}
	}
	return false
}

func (b *Backend) handleNotify(w http.ResponseWriter, r *http.Request, user *account, m *meeting) {
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the organiser can send notifications.")
		return
	}
	var body struct {
		Type string `json:"type"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Type == "" {
		body.Type = "reminder"
	}
	switch body.Type {
	case "invitation", "update", "cancellation", "reminder":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"detail": "Type must be one of: ['invitation', 'update', 'cancellation', 'reminder']",
		})
		return
	}

	results := map[string]bool{}
	for _, p := range m.Participants {
		results[p.Email] = true
		b.notifications[m.ID] = append(b.notifications[m.ID], notification{
			ID:               len(b.notifications[m.ID]) + 1,
			Meeting:          m.ID,
			Email:            p.Email,
			NotificationType: body.Type,
			Message:          body.Type + ": " + m.Title,
			IsSent:           true,
			SentAt:           b.now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (b *Backend) handleNotifications(w http.ResponseWriter, _ *http.Request, _ *account, m *meeting) {
	list := b.notifications[m.ID]
	if list == nil {
		list = []notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (b *Backend) handleListParticipants(w http.ResponseWriter, _ *http.Request, _ *account, m *meeting) {
	list := make([]*participant, len(m.Participants))
	copy(list, m.Participants)
	writeJSON(w, http.StatusOK, list)
}

func (b *Backend) handleAddParticipant(w http.ResponseWriter, r *http.Request, user *account, m *meeting) {
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the organiser can add participants.")
		return
	}
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if !decode(w, r, &body) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	for _, other := range b.meetings {
		if other.ID == m.ID || other.Status != "scheduled" {
			continue
		}
		if other.StartTime.Before(m.EndTime) && other.EndTime.After(m.StartTime) && b.attendsLocked(other, email) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"conflict": email + " has a scheduling conflict.",
				"details":  map[string]any{email: []map[string]any{{"id": other.ID, "title": other.Title}}},
			})
			return
		}
	}
	for _, p := range m.Participants {
		if p.Email == email {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"non_field_errors": []string{"The fields meeting, email must make a unique set."},
			})
			return
		}
	}
	writeJSON(w, http.StatusCreated, b.addParticipantLocked(m, email, body.Name))
}

func (b *Backend) findParticipant(w http.ResponseWriter, r *http.Request, m *meeting) (int, *participant) {
	pid, err := strconv.Atoi(r.PathValue("pid"))
	if err == nil {
		for i, p := range m.Participants {
			if p.ID == pid {
				return i, p
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "No Participant matches the given query."})
	return -1, nil
}

func (b *Backend) handleRemoveParticipant(w http.ResponseWriter, r *http.Request, user *account, m *meeting) {
	idx, p := b.findParticipant(w, r, m)
	if p == nil {
		return
	}
	if m.CreatedBy != user.profile.ID {
		forbidden(w, "Only the organiser can remove participants.")
		return
	}
	m.Participants = append(m.Participants[:idx], m.Participants[idx+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleParticipantStatus(w http.ResponseWriter, r *http.Request, user *account, m *meeting) {
	_, p := b.findParticipant(w, r, m)
	if p == nil {
		return
	}
	if (p.User == nil || *p.User != user.profile.ID) && m.CreatedBy != user.profile.ID {
		forbidden(w, "You can only update your own participation status.")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	switch body.Status {
	case "invited", "accepted", "declined", "tentative":
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": []string{fmt.Sprintf("%q is not a valid choice.", body.Status)}})
		return
	}
	now := b.now().UTC()
	p.Status = body.Status
	p.RespondedAt = &now
	writeJSON(w, http.StatusOK, p)
}
