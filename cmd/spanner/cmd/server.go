package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/heyvard/helse-spanner/api"
	"github.com/heyvard/helse-spanner/audit"
	"github.com/heyvard/helse-spanner/azuread"
	"github.com/heyvard/helse-spanner/config"
	"github.com/heyvard/helse-spanner/internal/util"
	"github.com/heyvard/helse-spanner/session"
	"github.com/heyvard/helse-spanner/spleis"
	"github.com/heyvard/helse-spanner/storage"
	bboltstorage "github.com/heyvard/helse-spanner/storage/bbolt"
	pgstorage "github.com/heyvard/helse-spanner/storage/postgres"
)

var (
	port        int
	dataDir     string
	postgresDSN string
)

// Subkey derivation labels. Changing one orphans every record sealed or
// signed under it.
const (
	sessionKeyInfo = "spanner/session-encryption/v1"
	auditKeyInfo   = "spanner/audit-hmac/v1"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session middleware server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		repo, closeRepo, err := openRepository(cmd.Context())
		if err != nil {
			return err
		}
		defer closeRepo()

		sessions, closeSessions, err := openSessionStore(&cfg, repo, logger)
		if err != nil {
			return err
		}
		defer closeSessions()

		auditStore, err := audit.NewStore(repo, logger,
			audit.WithMonitor(audit.NewMonitor(time.Minute, 30)))
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}

		var (
			auth      api.Authenticator
			refresher api.TokenRefresher
			persons   spleis.Personer
		)
		if cfg.Env == config.EnvLocal {
			local := azuread.NewLocal(cfg.SessionLifetime)
			auth, refresher = local, local
			persons = spleis.NewLokaleKjenninger()
			logger.Warn("running in local mode with canned logins and persons")
		} else {
			client, err := azuread.New(cmd.Context(), cfg.OIDC, cfg.RefreshTimeout, cfg.RefreshRetries, logger)
			if err != nil {
				return fmt.Errorf("setting up authorization server client: %w", err)
			}
			auth, refresher = client, client
			persons = spleis.NewClient(cfg.SpleisURL)
		}

		a := api.New(&cfg, sessions, auth, refresher, persons, auditStore, api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (env: %s)...\n", port, cfg.Env)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func openRepository(ctx context.Context) (storage.Repository, func(), error) {
	if postgresDSN != "" {
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(dataDir+"/spanner.db", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bbolt storage: %w", err)
	}
	return repo, func() { repo.Close() }, nil
}

// openSessionStore derives the session encryption key from the master key
// and builds the persistent store. Local mode without a master key falls
// back to the in-memory store.
func openSessionStore(cfg *config.Config, repo storage.Repository, logger *slog.Logger) (session.Store, func(), error) {
	if len(cfg.MasterKey) == 0 {
		return session.NewMemoryStore(), func() {}, nil
	}

	// The master key lives in a locked buffer only for the duration of
	// subkey derivation.
	master := memguard.NewBufferFromBytes(cfg.MasterKey)
	defer master.Destroy()

	sessionKey, err := util.HKDF(master.Bytes(), nil, []byte(sessionKeyInfo))
	if err != nil {
		return nil, nil, fmt.Errorf("deriving session key: %w", err)
	}
	defer util.WipeBytes(sessionKey)

	store, err := session.NewPersistentStore(repo, sessionKey, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, store.Close, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres DSN (bbolt in data-dir is used when empty)")
}
