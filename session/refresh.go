package session

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-meetings-client/credentials"
	apperrors "github.com/jrsteele09/go-meetings-client/internal/errors"
)

// refreshResult is delivered to every request queued behind a refresh.
type refreshResult struct {
	access string
	err    error
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// recoverUnauthorized runs the refresh protocol for a request that failed with
// authErr and replays it. The request is marked retried first so a second 401
// is returned to the caller instead of starting another cycle.
func (c *Client) recoverUnauthorized(ctx context.Context, p *preparedRequest, authErr error) (*Response, error) {
	p.retried = true

	c.mu.Lock()
	if c.refreshing {
		wait := make(chan refreshResult, 1)
		c.queue = append(c.queue, wait)
		c.mu.Unlock()

		c.logger.Debug().Str("method", p.method).Str("path", p.path).Msg("waiting for token refresh")
		select {
		case res := <-wait:
			if res.err != nil {
				return nil, res.err
			}
			return c.replay(ctx, p, res.access)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// A refresh may have completed between this request's dispatch and its
	// 401; replay with the newer token rather than refreshing again.
	pair, err := c.store.Load()
	if err == nil && pair.Access != "" && pair.Access != p.sentAccess {
		c.mu.Unlock()
		return c.replay(ctx, p, pair.Access)
	}

	c.refreshing = true
	generation := c.generation
	alreadyExpired := c.expiredGeneration != 0 && c.expiredGeneration == generation
	c.mu.Unlock()

	if err != nil || pair.Refresh == "" {
		failure := fmt.Errorf("%w: %w", apperrors.ErrNoRefreshToken, authErr)
		c.settle(generation, refreshResult{err: failure}, nil, false)
		// Stragglers from a burst whose refresh already failed do not report
		// the session as invalidated a second time.
		if !alreadyExpired {
			c.invalidate(failure)
		}
		return nil, failure
	}

	c.logger.Debug().Msg("refreshing access token")
	// The refresh outlives the caller that started it; other requests may be
	// waiting on its outcome.
	refreshed, refreshErr := c.requestRefresh(context.WithoutCancel(ctx), pair.Refresh)
	if refreshErr != nil {
		failure := fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, refreshErr)
		res := c.settle(generation, refreshResult{err: failure}, nil, true)
		if res.err == failure {
			c.logger.Warn().Err(refreshErr).Msg("token refresh failed, session cleared")
			c.invalidate(failure)
		}
		return nil, res.err
	}

	next := credentials.Pair{Access: refreshed.Access, Refresh: pair.Refresh}
	if refreshed.Refresh != "" {
		next.Refresh = refreshed.Refresh
	}
	res := c.settle(generation, refreshResult{access: next.Access}, &next, false)
	if res.err != nil {
		return nil, res.err
	}
	c.logger.Info().Msg("access token refreshed")
	return c.replay(ctx, p, res.access)
}

// settle records the outcome of a refresh, clears the in-flight flag and
// delivers the outcome to every queued request. A refresh that settles after
// a logout or a new login is discarded and reported as ErrLoggedOut.
func (c *Client) settle(generation uint64, res refreshResult, next *credentials.Pair, clearOnFailure bool) refreshResult {
	c.mu.Lock()
	stale := generation != c.generation
	switch {
	case stale:
		res = refreshResult{err: apperrors.ErrLoggedOut}
	case res.err == nil && next != nil:
		if err := c.store.Save(*next); err != nil {
			res = refreshResult{err: fmt.Errorf("failed to store refreshed credentials: %w", err)}
		}
	case res.err != nil && clearOnFailure:
		if err := c.store.Clear(); err != nil {
			c.logger.Err(err).Msg("failed to clear credentials")
		}
		c.generation++
		c.expiredGeneration = c.generation
	}
	c.refreshing = false
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, wait := range queue {
		wait <- res
	}
	return res
}

func (c *Client) requestRefresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	resp, err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      RouteTokenRefresh,
		Body:      refreshRequest{Refresh: refreshToken},
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}

	var refreshed refreshResponse
	if err := resp.Decode(&refreshed); err != nil {
		return nil, err
	}
	if refreshed.Access == "" {
		return nil, fmt.Errorf("refresh response has no access token")
	}
	return &refreshed, nil
}

func (c *Client) replay(ctx context.Context, p *preparedRequest, access string) (*Response, error) {
	c.logger.Debug().Str("method", p.method).Str("path", p.path).Msg("replaying request")
	return c.dispatch(ctx, p, access)
}

func (c *Client) invalidate(reason error) {
	c.logger.Warn().Err(reason).Msg("session invalidated")
	if c.onInvalidated != nil {
		c.onInvalidated(reason)
	}
}
