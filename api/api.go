// Package api is the HTTP surface: login flow, session guard and the
// person lookup endpoint.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/heyvard/helse-spanner/audit"
	"github.com/heyvard/helse-spanner/azuread"
	"github.com/heyvard/helse-spanner/config"
	"github.com/heyvard/helse-spanner/session"
	"github.com/heyvard/helse-spanner/spleis"
)

// Authenticator runs the authorization-code login flow.
type Authenticator interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (azuread.Login, error)
}

// TokenRefresher exchanges a refresh credential for a fresh token.
type TokenRefresher interface {
	Refresh(ctx context.Context, tok session.Token) (session.Token, error)
}

// API holds the dependencies needed by the HTTP handlers.
type API struct {
	sessions  session.Store
	auth      Authenticator
	refresher TokenRefresher
	persons   spleis.Personer
	audit     audit.Recorder
	logger    *slog.Logger

	env             config.EnvType
	sessionLifetime time.Duration
	refreshTimeout  time.Duration

	refreshes singleflight.Group
	now       func() time.Time
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. If not set, a default JSON logger
// writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// New creates a new API instance.
func New(cfg *config.Config, sessions session.Store, auth Authenticator, refresher TokenRefresher, persons spleis.Personer, recorder audit.Recorder, opts ...Option) *API {
	a := &API{
		sessions:        sessions,
		auth:            auth,
		refresher:       refresher,
		persons:         persons,
		audit:           recorder,
		env:             cfg.Env,
		sessionLifetime: cfg.SessionLifetime,
		refreshTimeout:  cfg.RefreshTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "api")
	return a
}

// Router returns a chi.Router with all routes mounted. The probe and login
// endpoints stay outside the guard; everything else requires a session.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(CorrelationID)
	r.Use(SecurityHeaders)

	r.Get("/internal/isalive", a.IsAlive)
	r.Get("/internal/isready", a.IsReady)

	r.Get("/login", a.Login)
	r.Get("/oauth2/callback", a.Callback)
	r.Get("/logout", a.Logout)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/openapi.yaml",
		Path:    "redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.Guard)
		r.Get("/", a.WhoAmI)
		r.Get("/api/person/", a.Person)
	})

	return r
}

// IsAlive answers the liveness probe.
func (a *API) IsAlive(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ALIVE"))
}

// IsReady answers the readiness probe.
func (a *API) IsReady(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("READY"))
}
