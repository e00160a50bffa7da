// Package azuread implements the authorization-server client: the
// authorization-code login flow and the refresh-token exchange.
package azuread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/heyvard/helse-spanner/config"
	"github.com/heyvard/helse-spanner/internal/util"
	"github.com/heyvard/helse-spanner/session"
)

var (
	// ErrIdentityVerification covers every failure between receiving an
	// authorization code and a fully verified identity token. A session must
	// never be created when it is returned.
	ErrIdentityVerification = errors.New("identity token verification failed")

	// ErrRefreshCredentialExpired means the authorization server rejected
	// the refresh token itself. Unrecoverable; the session must be terminated.
	ErrRefreshCredentialExpired = errors.New("refresh credential rejected by authorization server")

	// ErrAuthServerUnavailable is a transient failure (network, timeout, 5xx).
	ErrAuthServerUnavailable = errors.New("authorization server unavailable")

	// ErrMalformedTokenResponse means the token response was missing
	// required fields. Retried like a transient failure, logged louder.
	ErrMalformedTokenResponse = errors.New("token response missing required fields")
)

// Login is the outcome of a completed authorization-code exchange.
type Login struct {
	Identity session.Identity
	Token    session.Token
}

// Client talks to the Azure AD authorization server. It issues
// authorization-code URLs, completes the code exchange with identity-token
// verification, and refreshes access tokens.
type Client struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	logger   *slog.Logger
}

// New discovers the authorization server's endpoints and keys from the
// issuer URL and returns a ready Client. refreshTimeout bounds each call to
// the token endpoint; retries is the number of additional attempts after a
// transient refresh failure.
func New(ctx context.Context, cfg config.OIDC, refreshTimeout time.Duration, retries int, logger *slog.Logger) (*Client, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider: %w", err)
	}

	scopes := append([]string{oidc.ScopeOpenID, "profile", oidc.ScopeOfflineAccess}, cfg.ExtraScopes...)

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		timeout:  refreshTimeout,
		retries:  retries,
		backoff:  250 * time.Millisecond,
		logger:   logger.With("component", "azuread"),
	}, nil
}

// AuthCodeURL builds the authorization URL for the login redirect. The state
// and nonce must be bound to the client (cookie) so the callback can check them.
func (c *Client) AuthCodeURL(state, nonce string) string {
	return c.oauth.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange completes the authorization-code flow: code exchange, identity
// token verification (signature, issuer, audience, expiry) and nonce check.
// The identity is extracted from verified claims only.
func (c *Client) Exchange(ctx context.Context, code, nonce string) (Login, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Login{}, fmt.Errorf("%w: code exchange: %v", ErrIdentityVerification, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Login{}, fmt.Errorf("%w: no id_token in token response", ErrIdentityVerification)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Login{}, fmt.Errorf("%w: %v", ErrIdentityVerification, err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return Login{}, fmt.Errorf("%w: nonce mismatch", ErrIdentityVerification)
	}
	if idToken.Subject == "" {
		return Login{}, fmt.Errorf("%w: missing subject claim", ErrIdentityVerification)
	}

	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Login{}, fmt.Errorf("%w: parsing claims: %v", ErrIdentityVerification, err)
	}
	name := util.Normalize(claims.Name)
	if name == "" {
		name = util.Normalize(claims.PreferredUsername)
	}

	return Login{
		Identity: session.Identity{Subject: idToken.Subject, Name: name},
		Token: session.Token{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.Expiry,
		},
	}, nil
}
