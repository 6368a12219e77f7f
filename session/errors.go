package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed request.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindValidation:
		return "validation failure"
	case KindUnauthorized:
		return "authorization failure"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server failure"
	default:
		return "unknown failure"
	}
}

// Sentinels matched by errors.Is against an *APIError of the same kind.
var (
	ErrNetwork      = errors.New(KindNetwork.String())
	ErrValidation   = errors.New(KindValidation.String())
	ErrUnauthorized = errors.New(KindUnauthorized.String())
	ErrForbidden    = errors.New(KindForbidden.String())
	ErrNotFound     = errors.New(KindNotFound.String())
	ErrServer       = errors.New(KindServer.String())
)

var kindSentinels = map[Kind]error{
	KindNetwork:      ErrNetwork,
	KindValidation:   ErrValidation,
	KindUnauthorized: ErrUnauthorized,
	KindForbidden:    ErrForbidden,
	KindNotFound:     ErrNotFound,
	KindServer:       ErrServer,
}

// APIError is returned for every failed backend call. The body is kept as
// received so callers can build their own presentation from it.
type APIError struct {
	Kind        Kind
	Method      string
	Path        string
	StatusCode  int
	Body        []byte
	Detail      string
	Code        string
	FieldErrors map[string][]string
	Err         error // transport error for KindNetwork
}

func (e *APIError) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Kind, e.Message())
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Message renders a human readable summary: the backend's detail when present,
// otherwise every field error as "field: msg1, msg2" joined with " | ".
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	if len(e.FieldErrors) > 0 {
		fields := make([]string, 0, len(e.FieldErrors))
		for field := range e.FieldErrors {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, field+": "+strings.Join(e.FieldErrors[field], ", "))
		}
		return strings.Join(parts, " | ")
	}
	if body := strings.TrimSpace(string(e.Body)); body != "" && !json.Valid(e.Body) {
		return body
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "An unexpected error occurred."
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= http.StatusInternalServerError:
		return KindServer
	default:
		return KindValidation
	}
}

func newStatusError(method, path string, resp *Response) *APIError {
	apiErr := &APIError{
		Kind:       kindForStatus(resp.StatusCode),
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
	apiErr.parseBody()
	return apiErr
}

func newNetworkError(method, path string, err error) *APIError {
	return &APIError{Kind: KindNetwork, Method: method, Path: path, Err: err}
}

// parseBody extracts detail, code and field errors from a JSON error payload.
func (e *APIError) parseBody() {
	var payload map[string]any
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return
	}

	for key, value := range payload {
		switch key {
		case "detail":
			e.Detail = stringify(value)
		case "code":
			e.Code = stringify(value)
		case "messages":
			// SimpleJWT token diagnostics, not field errors.
		default:
			if e.FieldErrors == nil {
				e.FieldErrors = make(map[string][]string)
			}
			e.FieldErrors[key] = messages(value)
		}
	}
}

func messages(value any) []string {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
