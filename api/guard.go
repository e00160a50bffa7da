package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/heyvard/helse-spanner/session"
)

var (
	errSessionGone = errors.New("session no longer exists")
	errRefreshWait = errors.New("timed out waiting for token refresh")
)

// Guard is the middleware ahead of every protected route. It resolves the
// session cookie against the store, enforces the session ceiling, refreshes
// an expired access token and injects the resulting session into the
// request context. Handlers behind it never see an invalid token.
func (a *API) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			a.redirectToLogin(w, r)
			return
		}
		id := cookie.Value

		sess, ok := a.sessions.Get(id)
		if !ok {
			// Cookie without a session: restart, server side already clean.
			clearSessionCookie(w, a.env)
			a.redirectToLogin(w, r)
			return
		}

		if sess.Expired(a.now()) {
			a.sessions.Delete(id)
			clearSessionCookie(w, a.env)
			a.redirectToLogin(w, r)
			return
		}

		if sess.Token.Expired(a.now()) {
			refreshed, err := a.refreshSession(r.Context(), id)
			switch {
			case err == nil:
				sess = refreshed
			case errors.Is(err, errRefreshWait), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				// The refresh is still in flight; the session stays and a
				// later request picks up the outcome.
				a.logger.WarnContext(r.Context(), "token refresh still pending", "err", err)
				a.redirectToLogin(w, r)
				return
			default:
				// The refresh failed for good and the flight removed the
				// session; drop the cookie too.
				a.logger.WarnContext(r.Context(), "token refresh failed", "err", err)
				clearSessionCookie(w, a.env)
				a.redirectToLogin(w, r)
				return
			}
		}

		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login", http.StatusFound)
}

// refreshSession refreshes the session's token, collapsing concurrent
// attempts for the same session into a single call to the authorization
// server. Waiters give up after one refresh timeout; the in-flight refresh
// keeps running and later requests pick up its result from the store.
func (a *API) refreshSession(ctx context.Context, id string) (session.Session, error) {
	ch := a.refreshes.DoChan(id, func() (any, error) {
		// Detached from the request context so the refresh survives the
		// originating request being canceled.
		return a.doRefresh(context.WithoutCancel(ctx), id)
	})

	timer := time.NewTimer(a.refreshTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-timer.C:
		return session.Session{}, errRefreshWait
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	}
}

func (a *API) doRefresh(ctx context.Context, id string) (session.Session, error) {
	sess, ok := a.sessions.Get(id)
	if !ok {
		return session.Session{}, errSessionGone
	}
	if !sess.Token.Expired(a.now()) {
		// A previous flight already refreshed it.
		return sess, nil
	}

	tok, err := a.refresher.Refresh(ctx, sess.Token)
	if err != nil {
		// The refresher has already retried. An error here, whether the
		// refresh credential was rejected or the authorization server
		// stayed unreachable, ends the session.
		a.sessions.Delete(id)
		return session.Session{}, err
	}

	sess.Token = tok
	a.sessions.Put(id, sess)
	return sess, nil
}
