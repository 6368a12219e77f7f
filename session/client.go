package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-meetings-client/credentials"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-ID"

// Client mediates all traffic to the meetings backend. It attaches the stored
// access token to each request and, when a request fails with 401, performs a
// single coordinated refresh shared by every concurrently failing request.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	store         credentials.Store
	logger        zerolog.Logger
	onInvalidated func(reason error)

	// mu guards the refresh state below and serialises credential writes.
	mu         sync.Mutex
	refreshing bool
	queue      []chan refreshResult
	generation uint64
	// expiredGeneration is the generation a failed refresh cleared the
	// session into; zero when none has.
	expiredGeneration uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for every call.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the transport timeout on the client's HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// OnSessionInvalidated registers a callback invoked when the session can no
// longer be recovered: the refresh token is missing or the refresh failed.
// The stored credentials have already been cleared when it runs.
func OnSessionInvalidated(fn func(reason error)) Option {
	return func(c *Client) {
		c.onInvalidated = fn
	}
}

// New creates a Client for the backend at baseURL using store for credentials.
func New(baseURL string, store credentials.Store, options ...Option) (*Client, error) {
	if store == nil {
		return nil, fmt.Errorf("[session.New] credential store is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("[session.New] invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("[session.New] base URL must be absolute http(s): %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		store:      store,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Do sends req. A 401 on a request that has not been retried yet is resolved
// through the refresh protocol and the request is replayed once with the new
// access token; every other failure is returned unchanged.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	p, err := c.prepare(req)
	if err != nil {
		return nil, err
	}

	access := ""
	if !p.anonymous {
		pair, err := c.store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		access = pair.Access
	}

	resp, err := c.dispatch(ctx, p, access)
	if err == nil {
		return resp, nil
	}
	if !isUnauthorized(err) || p.anonymous || p.noRetry || p.retried {
		return nil, err
	}
	return c.recoverUnauthorized(ctx, p, err)
}

func (c *Client) dispatch(ctx context.Context, p *preparedRequest, access string) (*Response, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header = p.header.Clone()
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	p.sentAccess = ""
	if access != "" && !p.anonymous {
		(&oauth2.Token{AccessToken: access}).SetAuthHeader(httpReq)
		p.sentAccess = access
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newNetworkError(p.method, p.path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newNetworkError(p.method, p.path, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, newStatusError(p.method, p.path, resp)
	}
	return resp, nil
}

// Authenticated reports whether a complete credential pair is stored.
func (c *Client) Authenticated() bool {
	pair, err := c.store.Load()
	return err == nil && pair.Complete()
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return apperrors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}
