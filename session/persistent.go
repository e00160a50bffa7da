package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/heyvard/helse-spanner/internal/util"
	"github.com/heyvard/helse-spanner/storage"
)

const (
	sessionScope      = "sessions"
	sessionRecordKind = "SESSION"
	sessionAADPrefix  = "session:"
	sweepInterval     = 5 * time.Minute
)

// PersistentStore keeps sessions in a storage.Repository, encrypted at rest
// with AES-256-GCM. Sessions survive server restarts. Refresh tokens never
// touch disk in plaintext.
type PersistentStore struct {
	repo     storage.Repository
	key      []byte // 32-byte session encryption key, derived from the master key
	logger   *slog.Logger
	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Store = (*PersistentStore)(nil)

// NewPersistentStore creates a session store backed by the given repository.
// The key must be a 32-byte encryption key derived for this purpose; the
// caller keeps ownership of the master key it came from. A background sweep
// removes sessions past their ValidBefore ceiling.
func NewPersistentStore(repo storage.Repository, key []byte, logger *slog.Logger) (*PersistentStore, error) {
	if len(key) != util.AESKeySize {
		return nil, fmt.Errorf("session key must be exactly %d bytes, got %d", util.AESKeySize, len(key))
	}
	s := &PersistentStore{
		repo:   repo,
		key:    util.CopyBytes(key),
		logger: logger.With("component", "sessionstore"),
		stopCh: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Close stops the background sweep and wipes key material.
func (s *PersistentStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		util.WipeBytes(s.key)
	})
}

func (s *PersistentStore) Get(id string) (Session, bool) {
	env, err := s.repo.Get(sessionScope, sessionRecordKind, id)
	if err != nil {
		return Session{}, false
	}
	data, err := storage.OpenRecord(s.key, env, []byte(sessionAADPrefix+id))
	if err != nil {
		// Undecryptable records are garbage (key rotation or corruption).
		s.logger.Warn("dropping unreadable session record", "err", err)
		_ = s.repo.Delete(sessionScope, sessionRecordKind, id)
		return Session{}, false
	}
	defer util.WipeBytes(data)
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false
	}
	return sess, true
}

func (s *PersistentStore) Put(id string, sess Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		s.logger.Error("marshalling session", "err", err)
		return
	}
	env, err := storage.SealRecord(s.key, data, []byte(sessionAADPrefix+id))
	util.WipeBytes(data)
	if err != nil {
		s.logger.Error("sealing session", "err", err)
		return
	}
	if err := s.repo.Put(sessionScope, sessionRecordKind, id, env); err != nil {
		s.logger.Error("persisting session", "err", err)
	}
}

func (s *PersistentStore) Delete(id string) {
	_ = s.repo.Delete(sessionScope, sessionRecordKind, id)
}

func (s *PersistentStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

// sweepExpired removes sessions past their ValidBefore ceiling. The guard
// removes them on access; the sweep catches sessions nobody came back for.
func (s *PersistentStore) sweepExpired() {
	ids, err := s.repo.List(sessionScope, sessionRecordKind)
	if err != nil {
		return
	}
	now := time.Now()
	for _, id := range ids {
		sess, ok := s.Get(id)
		if !ok {
			continue
		}
		if sess.Expired(now) {
			_ = s.repo.Delete(sessionScope, sessionRecordKind, id)
		}
	}
}
