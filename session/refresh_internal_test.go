package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-meetings-client/credentials"
	"github.com/jrsteele09/go-meetings-client/credentials/memstore"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
	"github.com/jrsteele09/go-meetings-client/internal/fakebackend"
	"github.com/stretchr/testify/require"
)

func (c *Client) queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Client) inFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

func newLoggedInClient(t *testing.T, invalidated func(error)) (*fakebackend.Backend, *memstore.MemoryStore, *Client) {
	t.Helper()

	backend := fakebackend.New(t)
	backend.AddUser("ada@example.com", "pw")
	access, refresh := backend.IssueTokens("ada@example.com")
	store := memstore.NewWithPair(credentials.Pair{Access: access, Refresh: refresh})

	c, err := New(backend.URL(), store, OnSessionInvalidated(invalidated))
	require.NoError(t, err)
	return backend, store, c
}

func TestQueuedRequestsRejectedWhenRefreshFails(t *testing.T) {
	const waiting = 4

	var invalidations int
	var mu sync.Mutex
	backend, store, c := newLoggedInClient(t, func(error) {
		mu.Lock()
		invalidations++
		mu.Unlock()
	})
	backend.ExpireAccessTokens()
	backend.FailRefresh(true)
	release := backend.HoldRefresh()

	errs := make(chan error, waiting+1)
	go func() {
		_, err := c.CurrentUser(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return backend.RefreshCalls() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.True(t, c.inFlight())

	for range waiting {
		go func() {
			_, err := c.CurrentUser(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.queued() == waiting }, 5*time.Second, 5*time.Millisecond)
	release()

	for range waiting + 1 {
		require.ErrorIs(t, <-errs, apperrors.ErrSessionExpired)
	}
	require.Equal(t, 1, backend.RefreshCalls())
	require.Equal(t, waiting+1, backend.Hits(RouteMe), "rejected requests are not replayed")
	require.False(t, c.inFlight())
	require.Zero(t, c.queued())

	pair, err := store.Load()
	require.NoError(t, err)
	require.True(t, pair.IsZero())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, invalidations)
}

func TestQueuedRequestsReplayedWithNewToken(t *testing.T) {
	const waiting = 3

	backend, store, c := newLoggedInClient(t, nil)
	backend.ExpireAccessTokens()
	release := backend.HoldRefresh()

	errs := make(chan error, waiting+1)
	for range waiting + 1 {
		go func() {
			_, err := c.CurrentUser(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.queued() == waiting }, 5*time.Second, 5*time.Millisecond)
	release()

	for range waiting + 1 {
		require.NoError(t, <-errs)
	}
	require.Equal(t, 1, backend.RefreshCalls())

	pair, err := store.Load()
	require.NoError(t, err)
	for i, header := range backend.AuthHeaders(RouteMe)[waiting+1:] {
		require.Equal(t, "Bearer "+pair.Access, header, "replay %d", i)
	}
}

func TestStaleTokenReplaysWithoutRefresh(t *testing.T) {
	backend, store, c := newLoggedInClient(t, nil)
	stale, err := store.Load()
	require.NoError(t, err)

	backend.ExpireAccessTokens()
	access, refresh := backend.IssueTokens("ada@example.com")
	require.NoError(t, store.Save(credentials.Pair{Access: access, Refresh: refresh}))

	p, err := c.prepare(&Request{Path: RouteMe})
	require.NoError(t, err)
	_, authErr := c.dispatch(context.Background(), p, stale.Access)
	require.ErrorIs(t, authErr, ErrUnauthorized)

	resp, err := c.recoverUnauthorized(context.Background(), p, authErr)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Zero(t, backend.RefreshCalls())
	require.True(t, p.retried)
}

// expireOnRefresh drops every access token once a refresh response arrives,
// so replays made with the refreshed token are rejected as well.
type expireOnRefresh struct {
	backend *fakebackend.Backend
}

func (e expireOnRefresh) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err == nil && req.URL.Path == RouteTokenRefresh {
		e.backend.ExpireAccessTokens()
	}
	return resp, err
}

func TestQueuedReplayUnauthorizedIsReturned(t *testing.T) {
	const waiting = 3

	backend, _, c := newLoggedInClient(t, nil)
	c.httpClient = &http.Client{Transport: expireOnRefresh{backend}}
	backend.ExpireAccessTokens()
	release := backend.HoldRefresh()

	errs := make(chan error, waiting+1)
	go func() {
		_, err := c.CurrentUser(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return backend.RefreshCalls() == 1 }, 5*time.Second, 5*time.Millisecond)

	for range waiting {
		go func() {
			_, err := c.CurrentUser(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.queued() == waiting }, 5*time.Second, 5*time.Millisecond)
	release()

	for range waiting + 1 {
		require.ErrorIs(t, <-errs, ErrUnauthorized)
	}
	require.Equal(t, 1, backend.RefreshCalls())
	require.Equal(t, 2*(waiting+1), backend.Hits(RouteMe), "each request is sent once and replayed once")
	require.False(t, c.inFlight())
}

func TestStragglerAfterFailedRefreshInvalidatesOnce(t *testing.T) {
	var invalidations atomic.Int32
	backend, store, c := newLoggedInClient(t, func(error) { invalidations.Add(1) })
	ctx := context.Background()

	expired, err := store.Load()
	require.NoError(t, err)
	backend.ExpireAccessTokens()
	backend.RevokeRefreshTokens()

	first, err := c.prepare(&Request{Path: RouteMe})
	require.NoError(t, err)
	second, err := c.prepare(&Request{Path: RouteMe})
	require.NoError(t, err)
	_, firstErr := c.dispatch(ctx, first, expired.Access)
	require.ErrorIs(t, firstErr, ErrUnauthorized)
	_, secondErr := c.dispatch(ctx, second, expired.Access)
	require.ErrorIs(t, secondErr, ErrUnauthorized)

	_, err = c.recoverUnauthorized(ctx, first, firstErr)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	_, err = c.recoverUnauthorized(ctx, second, secondErr)
	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)

	require.Equal(t, 1, backend.RefreshCalls())
	require.EqualValues(t, 1, invalidations.Load())

	// A new session that fails to refresh is reported again.
	_, err = c.Login(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	backend.ExpireAccessTokens()
	backend.RevokeRefreshTokens()
	_, err = c.CurrentUser(ctx)
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.EqualValues(t, 2, invalidations.Load())
}
