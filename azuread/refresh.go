package azuread

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/heyvard/helse-spanner/session"
)

// Refresh exchanges the refresh credential for a new token. It never mutates
// the given token; a new value is returned on success.
//
// Unrecoverable rejection of the refresh credential is returned immediately.
// Transient and malformed-response failures are retried up to the configured
// count with linear backoff; each attempt is bounded by the refresh timeout.
func (c *Client) Refresh(ctx context.Context, tok session.Token) (session.Token, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return session.Token{}, fmt.Errorf("%w: %v", ErrAuthServerUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}

		next, err := c.refreshOnce(ctx, tok)
		if err == nil {
			return next, nil
		}
		if errors.Is(err, ErrRefreshCredentialExpired) {
			return session.Token{}, err
		}
		if errors.Is(err, ErrMalformedTokenResponse) {
			c.logger.Error("malformed token response from authorization server", "err", err)
		}
		lastErr = err
	}
	return session.Token{}, lastErr
}

func (c *Client) refreshOnce(ctx context.Context, tok session.Token) (session.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return session.Token{}, classifyRefreshError(err)
	}
	if fresh.AccessToken == "" || fresh.Expiry.IsZero() {
		return session.Token{}, fmt.Errorf("%w: no access token or expiry", ErrMalformedTokenResponse)
	}

	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		// The server is allowed to omit a new refresh token; the old one
		// stays valid in that case.
		refreshToken = tok.RefreshToken
	}
	return session.Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    fresh.Expiry,
	}, nil
}

func classifyRefreshError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		if rErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %s", ErrRefreshCredentialExpired, rErr.ErrorDescription)
		}
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		if status >= 400 && status < 500 && rErr.ErrorCode == "" {
			// A 4xx without a standard OAuth error body breaks the
			// token-endpoint contract.
			return fmt.Errorf("%w: status %d without error code", ErrMalformedTokenResponse, status)
		}
		return fmt.Errorf("%w: status %d: %s", ErrAuthServerUnavailable, status, rErr.ErrorCode)
	}
	// oauth2 reports a 2xx response without an access token as a plain
	// error; everything else here is network or timeout.
	if strings.Contains(err.Error(), "missing access_token") {
		return fmt.Errorf("%w: %v", ErrMalformedTokenResponse, err)
	}
	return fmt.Errorf("%w: %v", ErrAuthServerUnavailable, err)
}
