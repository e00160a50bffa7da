package azuread

import (
	"context"
	"net/url"
	"time"

	"github.com/heyvard/helse-spanner/session"
)

// Local stands in for the authorization server during local development.
// The login redirect loops straight back to the callback and every exchange
// yields the same canned identity. Never wired up outside local mode.
type Local struct {
	lifetime time.Duration
}

// NewLocal returns a local stand-in issuing tokens with the given lifetime.
func NewLocal(lifetime time.Duration) *Local {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Local{lifetime: lifetime}
}

func (l *Local) AuthCodeURL(state, _ string) string {
	return "/oauth2/callback?code=local-code&state=" + url.QueryEscape(state)
}

func (l *Local) Exchange(_ context.Context, _, _ string) (Login, error) {
	return Login{
		Identity: session.Identity{Subject: "Z990000", Name: "Lokal Saksbehandler"},
		Token:    l.token(),
	}, nil
}

func (l *Local) Refresh(_ context.Context, _ session.Token) (session.Token, error) {
	return l.token(), nil
}

func (l *Local) token() session.Token {
	return session.Token{
		AccessToken:  "local-access-token",
		RefreshToken: "local-refresh-token",
		ExpiresAt:    time.Now().Add(l.lifetime),
	}
}
