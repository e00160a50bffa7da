package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/heyvard/helse-spanner/internal/util"
	"github.com/heyvard/helse-spanner/session"
)

// Login handles GET /login: it binds a fresh state and nonce to the browser
// and redirects to the authorization server.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	state, err := util.RandomToken(16)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	nonce, err := util.RandomToken(16)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeLoginFlowCookie(w, a.env, state, nonce)
	http.Redirect(w, r, a.auth.AuthCodeURL(state, nonce), http.StatusFound)
}

// Callback handles GET /oauth2/callback. A session is created only after
// the state matches the login-bound cookie and the identity token verifies.
func (a *API) Callback(w http.ResponseWriter, r *http.Request) {
	boundState, nonce, ok := readLoginFlowCookie(r)
	clearLoginFlowCookie(w, a.env)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "no login in progress")
		return
	}

	state := r.URL.Query().Get("state")
	if subtle.ConstantTimeCompare([]byte(state), []byte(boundState)) != 1 {
		a.logger.WarnContext(r.Context(), "callback state mismatch")
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		a.logger.WarnContext(r.Context(), "authorization server returned error", "error", errCode)
		writeError(w, r, http.StatusUnauthorized, "login rejected")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "missing authorization code")
		return
	}

	login, err := a.auth.Exchange(r.Context(), code, nonce)
	if err != nil {
		a.logger.WarnContext(r.Context(), "code exchange failed", "err", err)
		writeError(w, r, http.StatusUnauthorized, "login failed")
		return
	}

	id, err := session.NewID()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	validBefore := a.now().Add(a.sessionLifetime)
	a.sessions.Put(id, session.Session{
		ID:          id,
		Token:       login.Token,
		ValidBefore: validBefore,
		Identity:    login.Identity,
	})

	a.logger.InfoContext(r.Context(), "session established", "subject", login.Identity.Subject)
	writeSessionCookie(w, a.env, id, validBefore)
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout handles GET /logout: the session is removed server side and the
// cookie cleared, whatever state it was in.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		a.sessions.Delete(cookie.Value)
	}
	clearSessionCookie(w, a.env)
	http.Redirect(w, r, "/login", http.StatusFound)
}
