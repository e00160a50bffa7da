package azuread

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/heyvard/helse-spanner/session"
)

func testClient(tokenURL string, retries int) *Client {
	return &Client{
		oauth: oauth2.Config{
			ClientID:     "spanner",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
		},
		timeout: 2 * time.Second,
		retries: retries,
		backoff: time.Millisecond,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func staleToken() session.Token {
	return session.Token{
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","refresh_token":"refresh-2","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 0).Refresh(context.Background(), staleToken())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken, "rotated refresh token must be adopted")
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 30*time.Second)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 0).Refresh(context.Background(), staleToken())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", got.RefreshToken)
}

func TestRefreshInvalidGrantIsUnrecoverable(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"AADSTS700082: refresh token expired"}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).Refresh(context.Background(), staleToken())
	assert.ErrorIs(t, err, ErrRefreshCredentialExpired)
	assert.Equal(t, int64(1), calls.Load(), "an expired credential must not be retried")
}

func TestRefreshServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).Refresh(context.Background(), staleToken())
	assert.ErrorIs(t, err, ErrAuthServerUnavailable)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRefreshRecoversOnRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	got, err := testClient(srv.URL, 1).Refresh(context.Background(), staleToken())
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", got.AccessToken)
}

func TestRefreshMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 0).Refresh(context.Background(), staleToken())
	assert.ErrorIs(t, err, ErrMalformedTokenResponse)
}

func TestRefreshNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := testClient(srv.URL, 0).Refresh(context.Background(), staleToken())
	assert.ErrorIs(t, err, ErrAuthServerUnavailable)
}
