package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/storefront/common"
	"github.com/guarzo/storefront/common/model"
)

// refreshState is the state of one session recovery after a 401.
//
//	Idle ──► Refreshing ──► Refreshed
//	  │           │
//	  │           └───────► Failed
//	  ├───────────────────► Refreshed   (a peer already rotated the token)
//	  └───────────────────► Failed      (no refresh token)
//
// Refreshed and Failed are terminal. Each Send walks the machine at most
// once, which is what bounds it to a single retry.
type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
	stateRefreshed
	stateFailed
)

func (s refreshState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRefreshing:
		return "refreshing"
	case stateRefreshed:
		return "refreshed"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("refreshState(%d)", int(s))
	}
}

// refreshFlightKey is the single-flight key: at most one refresh per client.
const refreshFlightKey = "refresh"

var (
	errNoRefreshToken = errors.New("no refresh token available")
	errLoggedOut      = errors.New("session already ended")
)

func errSessionEnded() error {
	return &AuthFailedError{Message: msgSessionExpired, Err: errLoggedOut}
}

// recoverSession drives the state machine for a request that got a 401
// while carrying sent as its access token. It returns the token to retry
// with, or the error that ends the call.
func (c *Client) recoverSession(ctx context.Context, sent string) (*oauth2.Token, error) {
	var (
		state = stateIdle
		token *oauth2.Token
		err   error
	)
	for {
		switch state {
		case stateIdle:
			state, token, err = c.leaveIdle(ctx, sent)
		case stateRefreshing:
			state, token, err = c.awaitRefresh(ctx, sent)
		case stateRefreshed:
			return token, nil
		case stateFailed:
			return nil, err
		default:
			return nil, fmt.Errorf("refresh: unexpected state %s", state)
		}
	}
}

// leaveIdle decides whether a refresh is needed at all.
func (c *Client) leaveIdle(ctx context.Context, sent string) (refreshState, *oauth2.Token, error) {
	current, err := c.store.Token(ctx)
	if err != nil {
		return stateFailed, nil, &RequestError{Message: "token store unavailable", Err: err}
	}
	if current != nil && current.AccessToken != sent {
		// Someone refreshed (or logged in) while our request was in flight.
		c.observer.RecordRefresh(RefreshShared)
		return stateRefreshed, current, nil
	}
	if current == nil && sent != "" {
		// a peer's failed refresh already cleared the store and told subscribers
		return stateFailed, nil, errSessionEnded()
	}
	if current == nil || current.RefreshToken == "" {
		return stateFailed, nil, c.forceLogout(ctx, errNoRefreshToken)
	}
	return stateRefreshing, nil, nil
}

// awaitRefresh joins the in-flight refresh or starts one. Callers whose ctx
// ends first stop waiting; the refresh itself carries on for the others.
func (c *Client) awaitRefresh(ctx context.Context, sent string) (refreshState, *oauth2.Token, error) {
	ch := c.flight.DoChan(refreshFlightKey, func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx), sent)
	})

	select {
	case <-ctx.Done():
		return stateFailed, nil, &TransportError{Message: msgTransport, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return stateFailed, nil, res.Err
		}
		if res.Shared {
			c.observer.RecordRefresh(RefreshShared)
		}
		return stateRefreshed, res.Val.(*oauth2.Token), nil
	}
}

// refresh redeems the stored refresh token. It runs once per flight.
func (c *Client) refresh(ctx context.Context, sent string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	current, err := c.store.Token(ctx)
	if err != nil {
		return nil, &RequestError{Message: "token store unavailable", Err: err}
	}
	if current == nil {
		return nil, errSessionEnded()
	}
	if current.RefreshToken == "" {
		return nil, c.forceLogout(ctx, errNoRefreshToken)
	}
	if current.AccessToken != sent {
		// a flight that ended just before this one already rotated the pair
		return current, nil
	}

	c.logger.Debugf("api: refreshing session with %s", common.RedactToken(current.RefreshToken))
	fresh, err := c.authClient.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		if IsTransport(err) {
			// The server never answered; the session may still be valid.
			c.observer.RecordRefresh(RefreshErrored)
			c.logger.Warnf("api: refresh did not reach the server: %v", err)
			return nil, err
		}
		c.observer.RecordRefresh(RefreshRejected)
		return nil, c.forceLogout(ctx, err)
	}
	if !common.ValidPair(fresh) {
		c.observer.RecordRefresh(RefreshRejected)
		return nil, c.forceLogout(ctx, common.ErrIncompleteToken)
	}

	if err := c.store.SetToken(ctx, fresh); err != nil {
		c.observer.RecordRefresh(RefreshErrored)
		return nil, &RequestError{Message: "refreshed session could not be saved", Err: err}
	}
	c.observer.RecordRefresh(RefreshSucceeded)
	c.logger.Infof("api: session refreshed")
	return fresh, nil
}

// forceLogout clears the store and notifies subscribers. It is the only
// path besides an explicit logout that removes tokens.
func (c *Client) forceLogout(ctx context.Context, reason error) error {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Errorf("api: failed to clear token store: %v", err)
	}
	c.observer.RecordLogout()
	c.logger.Warnf("api: session ended: %v", reason)

	c.logouts.emit(LogoutEvent{
		Reason:     reason,
		RedirectTo: c.redirectTo,
		At:         time.Now(),
	})
	return &AuthFailedError{Message: msgSessionExpired, Err: reason}
}

// tokenRefresher is the default AuthClient: it posts the refresh token to
// RefreshPath through the client's transport, bypassing the 401 handling.
type tokenRefresher struct {
	client *Client
}

func (r *tokenRefresher) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	p, err := r.client.prepare(Request{
		Method: http.MethodPost,
		Path:   RefreshPath,
		Body:   model.RefreshRequest{RefreshToken: refreshToken},
	})
	if err != nil {
		return nil, err
	}
	resp, err := r.client.execute(ctx, p, "")
	if err != nil {
		return nil, err
	}
	env, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}

	var pair model.TokenPairResponse
	if err := env.DecodeBody(&pair); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if pair.AccessToken == "" {
		// some deployments wrap the pair in the usual envelope
		if err := env.DecodeData(&pair); err != nil {
			return nil, fmt.Errorf("failed to decode refresh response: %w", err)
		}
	}
	return &oauth2.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}
