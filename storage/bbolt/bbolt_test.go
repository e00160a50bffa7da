package bbolt

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/heyvard/helse-spanner/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewRepositoryFromFile(filepath.Join(t.TempDir(), "spanner.db"), nil)
	if err != nil {
		t.Fatalf("opening bbolt store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBBoltRepository(t *testing.T) {
	s := newTestStore(t)
	scope := "sessions"
	kind := "SESSION"
	env := &storage.Envelope{
		Ver:        1,
		Scheme:     storage.SchemeAESGCM,
		Nonce:      []byte("nonce1234567"),
		Ciphertext: []byte("ciphertext"),
	}

	t.Run("PutAndGet", func(t *testing.T) {
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

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := s.Get("nope", kind, "tok-1"); !errors.Is(err, storage.ErrScopeNotFound) {
			t.Errorf("expected ErrScopeNotFound, got %v", err)
		}
		if _, err := s.Get(scope, kind, "nope"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListIsPrefixScoped", func(t *testing.T) {
		s.Put(scope, "AUDIT", "e-1", env)
		s.Put(scope, "AUDIT", "e-2", env)
		ids, err := s.List(scope, "AUDIT")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 ids, got %d: %v", len(ids), ids)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s.Put(scope, kind, "del-me", env)
		if err := s.Delete(scope, kind, "del-me"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(scope, kind, "del-me"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("BatchIsAtomic", func(t *testing.T) {
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

	t.Run("SurvivesReopen", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "reopen.db")
		s1, err := NewRepositoryFromFile(path, nil)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := s1.Put(scope, kind, "persist", env); err != nil {
			t.Fatalf("Put: %v", err)
		}
		s1.Close()

		s2, err := NewRepositoryFromFile(path, nil)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}
		defer s2.Close()
		if _, err := s2.Get(scope, kind, "persist"); err != nil {
			t.Errorf("expected record after reopen, got %v", err)
		}
	})
}
