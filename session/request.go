package session

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one backend call. Body, when set, is encoded as JSON once
// so that a replay after a token refresh sends identical bytes.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Header http.Header

	// Anonymous requests carry no bearer token and never trigger a refresh.
	Anonymous bool
	// NoRetry requests carry the bearer token but a 401 is returned as is.
	NoRetry bool
}

// Response is a completed 2xx backend response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Filename returns the attachment filename from Content-Disposition, if any.
func (r *Response) Filename() string {
	disposition := r.Header.Get("Content-Disposition")
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// preparedRequest is a Request resolved against the base URL with its body
// encoded. retried is set once the request has been through a refresh cycle.
type preparedRequest struct {
	method     string
	path       string
	url        string
	body       []byte
	header     http.Header
	anonymous  bool
	noRetry    bool
	retried    bool
	sentAccess string
}

func (c *Client) prepare(req *Request) (*preparedRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Paths are appended verbatim; backend routes require their trailing slash.
	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	target.RawPath = ""
	target.RawQuery = ""
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	p := &preparedRequest{
		method:    method,
		path:      req.Path,
		url:       target.String(),
		header:    req.Header.Clone(),
		anonymous: req.Anonymous,
		noRetry:   req.NoRetry,
	}
	if p.header == nil {
		p.header = make(http.Header)
	}
	if req.Body != nil {
		body, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		p.body = body
		p.header.Set("Content-Type", "application/json")
	}
	if p.header.Get("Accept") == "" {
		p.header.Set("Accept", "application/json")
	}
	return p, nil
}
