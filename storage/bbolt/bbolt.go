// Package bbolt provides a BBolt-backed storage repository.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/heyvard/helse-spanner/storage"
)

// Store implements storage.Repository backed by a BBolt database.
// Each scope maps to a top-level bucket; records are keyed "kind:id".
type Store struct {
	db *bbolt.DB
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given BBolt database.
func NewRepository(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewRepositoryFromFile opens a BBolt database at the given path and returns a new Repository.
func NewRepositoryFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewRepository(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(kind, id string) []byte {
	return []byte(kind + ":" + id)
}

func (s *Store) Put(scope, kind, id string, envelope *storage.Envelope) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return putInBucket(b, kind, id, envelope)
	})
}

func (s *Store) Get(scope, kind, id string) (*storage.Envelope, error) {
	var envelope storage.Envelope
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
		}
		data := b.Get(recordKey(kind, id))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &envelope)
	})
	if err != nil {
		return nil, err
	}
	return &envelope, nil
}

func (s *Store) List(scope, kind string) ([]string, error) {
	var ids []string
	prefix := []byte(kind + ":")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (s *Store) Delete(scope, kind, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scope))
		if b == nil {
			return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
		}
		return deleteInBucket(b, kind, id)
	})
}

func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(scope))
		if err != nil {
			return err
		}
		return fn(&boltBatchTx{bucket: b})
	})
}

func putInBucket(b *bbolt.Bucket, kind, id string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return b.Put(recordKey(kind, id), data)
}

func deleteInBucket(b *bbolt.Bucket, kind, id string) error {
	key := recordKey(kind, id)
	if b.Get(key) == nil {
		return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
	}
	return b.Delete(key)
}

type boltBatchTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltBatchTx) Put(kind, id string, envelope *storage.Envelope) error {
	return putInBucket(tx.bucket, kind, id, envelope)
}

func (tx *boltBatchTx) Delete(kind, id string) error {
	return deleteInBucket(tx.bucket, kind, id)
}
