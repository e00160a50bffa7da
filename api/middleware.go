package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heyvard/helse-spanner/config"
	"github.com/heyvard/helse-spanner/session"
)

type contextKey int

const (
	sessionKey contextKey = iota
	correlationKey
)

const (
	sessionCookieName = "spanner"
	oidcCookieName    = "spanner_oidc"

	// loginFlowTTL bounds how long a login redirect may stay pending.
	loginFlowTTL = 10 * time.Minute
)

// CorrelationID assigns every request a correlation id, echoed in the
// response header and carried on the context for logs, errors and audit
// entries. An incoming X-Correlation-ID is honored so callers can trace
// requests end to end.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		ctx := context.WithValue(r.Context(), correlationKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// SecurityHeaders sets standard security response headers on every
// response. It should be placed early in the middleware chain.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		if requestIsSecure(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(session.Session)
	return sess, ok
}

// cookieAttrs returns the cookie hardening for the environment. Local mode
// relaxes them so the flow works over plain http on localhost.
func cookieAttrs(env config.EnvType) (secure bool, sameSite http.SameSite) {
	if env == config.EnvLocal {
		return false, http.SameSiteLaxMode
	}
	return true, http.SameSiteStrictMode
}

func writeSessionCookie(w http.ResponseWriter, env config.EnvType, id string, expiresAt time.Time) {
	secure, sameSite := cookieAttrs(env)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, env config.EnvType) {
	secure, sameSite := cookieAttrs(env)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// writeLoginFlowCookie binds the state and nonce of a pending login to the
// browser. SameSite must be Lax even in prod: the callback arrives as a
// cross-site redirect from the authorization server.
func writeLoginFlowCookie(w http.ResponseWriter, env config.EnvType, state, nonce string) {
	secure, _ := cookieAttrs(env)
	http.SetCookie(w, &http.Cookie{
		Name:     oidcCookieName,
		Value:    state + "." + nonce,
		Path:     "/oauth2/callback",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(loginFlowTTL.Seconds()),
	})
}

func readLoginFlowCookie(r *http.Request) (state, nonce string, ok bool) {
	cookie, err := r.Cookie(oidcCookieName)
	if err != nil || cookie.Value == "" {
		return "", "", false
	}
	return strings.Cut(cookie.Value, ".")
}

func clearLoginFlowCookie(w http.ResponseWriter, env config.EnvType) {
	secure, _ := cookieAttrs(env)
	http.SetCookie(w, &http.Cookie{
		Name:     oidcCookieName,
		Value:    "",
		Path:     "/oauth2/callback",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
