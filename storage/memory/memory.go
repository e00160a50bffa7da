// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/heyvard/helse-spanner/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing and local development; records are lost on restart.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Envelope)}
}

func makeKey(kind, id string) string {
	return kind + ":" + id
}

func cloneEnvelope(env *storage.Envelope) *storage.Envelope {
	if env == nil {
		return nil
	}
	return &storage.Envelope{
		Ver:        env.Ver,
		Scheme:     env.Scheme,
		Nonce:      append([]byte(nil), env.Nonce...),
		Ciphertext: append([]byte(nil), env.Ciphertext...),
	}
}

func (r *Repository) Put(scope, kind, id string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(scope, kind, id, envelope)
}

func (r *Repository) putLocked(scope, kind, id string, envelope *storage.Envelope) error {
	if _, ok := r.data[scope]; !ok {
		r.data[scope] = make(map[string]*storage.Envelope)
	}
	r.data[scope][makeKey(kind, id)] = cloneEnvelope(envelope)
	return nil
}

func (r *Repository) Get(scope, kind, id string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	scopeData, ok := r.data[scope]
	if !ok {
		return nil, storage.ErrScopeNotFound
	}
	env, ok := scopeData[makeKey(kind, id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (r *Repository) List(scope, kind string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := kind + ":"
	for k := range r.data[scope] {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	return ids, nil
}

func (r *Repository) Delete(scope, kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(scope, kind, id)
}

func (r *Repository) deleteLocked(scope, kind, id string) error {
	k := makeKey(kind, id)
	scopeData, ok := r.data[scope]
	if !ok {
		return storage.ErrScopeNotFound
	}
	if _, ok := scopeData[k]; !ok {
		return storage.ErrNotFound
	}
	delete(scopeData, k)
	return nil
}

// Batch executes fn while holding the write lock. On error, all writes are
// rolled back by restoring a snapshot of the scope.
func (r *Repository) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := r.snapshotScope(scope)

	tx := &memoryBatchTx{repo: r, scope: scope}
	if err := fn(tx); err != nil {
		r.restoreScope(scope, snapshot)
		return err
	}
	return nil
}

func (r *Repository) snapshotScope(scope string) map[string]*storage.Envelope {
	original, ok := r.data[scope]
	if !ok {
		return nil
	}
	cp := make(map[string]*storage.Envelope, len(original))
	for k, v := range original {
		cp[k] = cloneEnvelope(v)
	}
	return cp
}

func (r *Repository) restoreScope(scope string, snapshot map[string]*storage.Envelope) {
	if snapshot == nil {
		delete(r.data, scope)
	} else {
		r.data[scope] = snapshot
	}
}

type memoryBatchTx struct {
	repo  *Repository
	scope string
}

func (tx *memoryBatchTx) Put(kind, id string, envelope *storage.Envelope) error {
	return tx.repo.putLocked(tx.scope, kind, id, envelope)
}

func (tx *memoryBatchTx) Delete(kind, id string) error {
	return tx.repo.deleteLocked(tx.scope, kind, id)
}
