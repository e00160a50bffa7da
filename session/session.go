// Package session holds the server-side session model and its stores.
package session

import (
	"time"

	"github.com/heyvard/helse-spanner/internal/util"
)

// Token is one access credential plus the refresh credential needed to mint
// the next one. A Token is immutable: refreshing produces a new value.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access credential is no longer usable.
// The credential is usable only strictly before ExpiresAt.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Identity is the authenticated user, extracted once from verified
// identity-token claims at login and never re-derived from later tokens.
type Identity struct {
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

// Session binds a client to an identity and its current token. ValidBefore
// is a hard lifetime ceiling independent of the token's own expiry.
type Session struct {
	ID          string    `json:"id"`
	Token       Token     `json:"token"`
	ValidBefore time.Time `json:"valid_before"`
	Identity    Identity  `json:"identity"`
}

// Expired reports whether the session itself has passed its ceiling.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ValidBefore)
}

// NewID generates a cryptographically random session identifier
// (256 bits, URL-safe base64).
func NewID() (string, error) {
	return util.RandomToken(32)
}

// Store abstracts session persistence. Absence is not an error: a missing
// id is the canonical unauthenticated signal. Lookups and writes are atomic
// per key; lifecycle decisions (ceiling expiry, refresh) belong to callers.
type Store interface {
	// Get retrieves a session by id. Returns false if it does not exist.
	Get(id string) (Session, bool)
	// Put creates or replaces the session stored under id.
	Put(id string, s Session)
	// Delete removes a session by id. Deleting a missing id is a no-op.
	Delete(id string)
}
