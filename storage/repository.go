// Package storage provides the storage abstraction layer for sealed
// session and audit records.
package storage

import "errors"

// ErrNotFound is returned when a record does not exist within its scope.
var ErrNotFound = errors.New("record not found")

// ErrScopeNotFound is returned when the scope itself has never been written.
var ErrScopeNotFound = errors.New("scope not found")

// IsNotFound reports whether err means the record or its scope is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrScopeNotFound)
}

// BatchTx provides Put and Delete within an atomic transaction.
// The scope is bound to the batch, so methods don't require it.
type BatchTx interface {
	Put(kind string, id string, envelope *Envelope) error
	Delete(kind string, id string) error
}

// Repository defines the interface for sealed record storage. Records are
// addressed by (scope, kind, id); scopes partition unrelated data such as
// sessions and the audit chain.
type Repository interface {
	Put(scope string, kind string, id string, envelope *Envelope) error
	Get(scope string, kind string, id string) (*Envelope, error)
	List(scope string, kind string) ([]string, error)
	Delete(scope string, kind string, id string) error
	Batch(scope string, fn func(tx BatchTx) error) error
}
