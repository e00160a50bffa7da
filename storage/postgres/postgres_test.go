package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heyvard/helse-spanner/storage"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("SPANNER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPANNER_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck

	return NewRepository(pool), func() {
		pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
		pool.Close()
	}
}

func TestPostgresRepository(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	scope := "sessions"
	kind := "SESSION"
	env := &storage.Envelope{Ver: 1, Scheme: storage.SchemeAESGCM, Nonce: make([]byte, 12), Ciphertext: []byte("cipher")}

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(scope, kind, "tok-1", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(scope, kind, "tok-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Scheme != env.Scheme {
			t.Errorf("got scheme %q, want %q", got.Scheme, env.Scheme)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		changed := &storage.Envelope{Ver: 1, Scheme: storage.SchemeAESGCM, Nonce: make([]byte, 12), Ciphertext: []byte("changed")}
		if err := s.Put(scope, kind, "tok-1", changed); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(scope, kind, "tok-1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Ciphertext) != "changed" {
			t.Errorf("expected upserted ciphertext, got %q", got.Ciphertext)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := s.Get(scope, kind, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.Get("empty-scope", kind, "missing"); !errors.Is(err, storage.ErrScopeNotFound) {
			t.Errorf("expected ErrScopeNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := s.Put(scope, kind, "del-me", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := s.Delete(scope, kind, "del-me"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(scope, kind, "del-me"); err == nil {
			t.Error("expected error on double delete")
		}
	})

	t.Run("BatchRollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(scope, func(tx storage.BatchTx) error {
			if err := tx.Put("AUDIT", "rolled-back", env); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected batch error, got %v", err)
		}
		if _, err := s.Get(scope, "AUDIT", "rolled-back"); err == nil {
			t.Error("batch write should have been rolled back")
		}
	})
}
