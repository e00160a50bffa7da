package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heyvard/helse-spanner/storage"
)

const (
	auditScope    = "audit"
	entryKind     = "ENTRY"
	headKind      = "HEAD"
	headRecordID  = "head"
	entryIDFormat = "%016d"
)

// head is the persisted chain tip. Keeping it as its own record lets the
// store resume without scanning every entry.
type head struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

// Store is the Recorder backed by a storage.Repository. Entries are
// committed atomically together with the chain head, serialized by a mutex
// so the chain never forks. Every committed entry is mirrored to the log.
type Store struct {
	mu      sync.Mutex
	repo    storage.Repository
	logger  *slog.Logger
	monitor *Monitor
	now     func() time.Time

	seq  uint64
	head string
}

var _ Recorder = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMonitor attaches a lookup-spike monitor; committed entries feed it.
func WithMonitor(m *Monitor) Option {
	return func(s *Store) { s.monitor = m }
}

// NewStore opens the audit store, resuming the chain from the persisted
// head. An empty repository starts a fresh chain from the genesis hash.
func NewStore(repo storage.Repository, logger *slog.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		repo:   repo,
		logger: logger.With("component", "audit"),
		now:    time.Now,
		head:   GenesisHash,
	}
	for _, opt := range opts {
		opt(s)
	}

	env, err := repo.Get(auditScope, headKind, headRecordID)
	switch {
	case err == nil:
		var h head
		if err := json.Unmarshal(env.Ciphertext, &h); err != nil {
			return nil, fmt.Errorf("decoding audit head: %w", err)
		}
		s.seq = h.Seq
		s.head = h.Hash
	case storage.IsNotFound(err):
		// fresh chain
	default:
		return nil, fmt.Errorf("loading audit head: %w", err)
	}
	return s, nil
}

// Record commits one access entry to the chain. It returns only after the
// entry and the new head are durably stored; on error nothing is committed
// and the caller must abort the lookup it was about to audit.
func (s *Store) Record(ctx context.Context, access Access) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		ID:            uuid.NewString(),
		Seq:           s.seq + 1,
		Timestamp:     s.now().UTC(),
		Actor:         access.Actor,
		ActorName:     access.ActorName,
		TargetID:      access.TargetID,
		TargetKind:    access.TargetKind,
		CorrelationID: access.CorrelationID,
		PrevHash:      s.head,
	}
	entry.Hash = ChainHash(entry)

	entryData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}
	headData, err := json.Marshal(head{Seq: entry.Seq, Hash: entry.Hash})
	if err != nil {
		return fmt.Errorf("encoding audit head: %w", err)
	}

	err = s.repo.Batch(auditScope, func(tx storage.BatchTx) error {
		if err := tx.Put(entryKind, fmt.Sprintf(entryIDFormat, entry.Seq), storage.PlainRecord(entryData)); err != nil {
			return err
		}
		return tx.Put(headKind, headRecordID, storage.PlainRecord(headData))
	})
	if err != nil {
		return fmt.Errorf("committing audit entry: %w", err)
	}

	s.seq = entry.Seq
	s.head = entry.Hash

	s.logger.InfoContext(ctx, "person access",
		"audit_id", entry.ID,
		"actor", entry.Actor,
		"target_kind", entry.TargetKind,
		"correlation_id", entry.CorrelationID,
	)
	if s.monitor != nil && s.monitor.Observe(entry.Actor, entry.Timestamp) {
		s.logger.WarnContext(ctx, "lookup volume spike", "actor", entry.Actor)
	}
	return nil
}

// Entries returns the full chain in sequence order.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	last := s.seq
	s.mu.Unlock()

	entries := make([]Entry, 0, last)
	for seq := uint64(1); seq <= last; seq++ {
		env, err := s.repo.Get(auditScope, entryKind, fmt.Sprintf(entryIDFormat, seq))
		if err != nil {
			return nil, fmt.Errorf("loading audit entry %d: %w", seq, err)
		}
		var entry Entry
		if err := json.Unmarshal(env.Ciphertext, &entry); err != nil {
			return nil, fmt.Errorf("decoding audit entry %d: %w", seq, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
