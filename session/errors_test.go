package session

import (
	"errors"
	"net/http"
	"testing"

	"github.com/jrsteele09/go-meetings-client/credentials/memstore"
	"github.com/stretchr/testify/require"
)

func TestKindForStatus(t *testing.T) {
	tests := map[int]Kind{
		http.StatusBadRequest:          KindValidation,
		http.StatusConflict:            KindValidation,
		http.StatusUnprocessableEntity: KindValidation,
		http.StatusTooManyRequests:     KindValidation,
		http.StatusUnauthorized:        KindUnauthorized,
		http.StatusForbidden:           KindForbidden,
		http.StatusNotFound:            KindNotFound,
		http.StatusInternalServerError: KindServer,
		http.StatusBadGateway:          KindServer,
	}
	for status, kind := range tests {
		require.Equal(t, kind, kindForStatus(status), status)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"detail wins", 400, `{"detail":"Meeting is already cancelled.","title":["x"]}`, "Meeting is already cancelled."},
		{"field errors sorted", 400, `{"title":["This field is required."],"end_time":["Must be later.","Really."]}`, "end_time: Must be later., Really. | title: This field is required."},
		{"non list field", 400, `{"conflict":"bob@example.com has a scheduling conflict."}`, "conflict: bob@example.com has a scheduling conflict."},
		{"token messages ignored", 401, `{"detail":"Given token not valid for any token type","code":"token_not_valid","messages":[{"message":"x"}]}`, "Given token not valid for any token type"},
		{"plain text body", 502, "upstream exploded", "upstream exploded"},
		{"empty body", 404, "", "Not Found"},
		{"empty object", 418, "{}", "I'm a teapot"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := newStatusError(http.MethodPost, "/api/x/", &Response{StatusCode: tc.status, Body: []byte(tc.body)})
			require.Equal(t, tc.message, err.Message())
			require.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestAPIErrorParse(t *testing.T) {
	err := newStatusError(http.MethodGet, "/api/auth/me/", &Response{
		StatusCode: http.StatusUnauthorized,
		Body:       []byte(`{"detail":"expired","code":"token_not_valid","messages":[]}`),
	})
	require.Equal(t, "token_not_valid", err.Code)
	require.Empty(t, err.FieldErrors)
	require.Equal(t, "GET /api/auth/me/: 401 authorization failure: expired", err.Error())
}

func TestAPIErrorIs(t *testing.T) {
	var err error = newStatusError(http.MethodGet, "/", &Response{StatusCode: http.StatusForbidden})
	require.ErrorIs(t, err, ErrForbidden)
	require.NotErrorIs(t, err, ErrUnauthorized)

	cause := errors.New("connection refused")
	err = newNetworkError(http.MethodGet, "/", cause)
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}

func TestResponseFilename(t *testing.T) {
	resp := &Response{Header: http.Header{}}
	require.Empty(t, resp.Filename())

	resp.Header.Set("Content-Disposition", `attachment; filename="Team_sync.ics"`)
	require.Equal(t, "Team_sync.ics", resp.Filename())

	resp.Header.Set("Content-Disposition", "attachment; filename=")
	require.Empty(t, resp.Filename())
}

func TestPrepare(t *testing.T) {
	c, err := New("http://example.com/base/", memstore.New())
	require.NoError(t, err)

	p, err := c.prepare(&Request{Path: "/api/meetings/", Body: map[string]string{"a": "b"}})
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, p.method)
	require.Equal(t, "http://example.com/base/api/meetings/", p.url)
	require.Equal(t, `{"a":"b"}`, string(p.body))
	require.Equal(t, "application/json", p.header.Get("Content-Type"))
	require.Equal(t, "application/json", p.header.Get("Accept"))

	p, err = c.prepare(&Request{
		Path:   "api/meetings/my-calendar/",
		Query:  map[string][]string{"status": {"scheduled"}},
		Header: http.Header{"Accept": {"text/calendar"}},
	})
	require.NoError(t, err)
	require.Equal(t, "http://example.com/base/api/meetings/my-calendar/?status=scheduled", p.url)
	require.Equal(t, "text/calendar", p.header.Get("Accept"))
	require.Nil(t, p.body)
}
