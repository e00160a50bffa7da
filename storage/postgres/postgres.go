// Package postgres implements storage.Repository backed by PostgreSQL.
//
// The records table uses a composite primary key (scope, kind, id) that
// mirrors the key space used by the BBolt and in-memory backends. Envelope
// fields are stored as individual columns to leverage native BYTEA storage
// for nonce and ciphertext data.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heyvard/helse-spanner/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// EnsureSchema creates the records table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			scope      TEXT  NOT NULL,
			kind       TEXT  NOT NULL,
			id         TEXT  NOT NULL,
			ver        INT   NOT NULL,
			scheme     TEXT  NOT NULL,
			nonce      BYTEA,
			ciphertext BYTEA NOT NULL,
			PRIMARY KEY (scope, kind, id)
		)`)
	return err
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const upsertSQL = `INSERT INTO records (scope, kind, id, ver, scheme, nonce, ciphertext)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)
	 ON CONFLICT (scope, kind, id)
	 DO UPDATE SET ver = $4, scheme = $5, nonce = $6, ciphertext = $7`

func (s *Store) Put(scope, kind, id string, envelope *storage.Envelope) error {
	_, err := s.pool.Exec(context.Background(), upsertSQL,
		scope, kind, id, envelope.Ver, envelope.Scheme, envelope.Nonce, envelope.Ciphertext)
	return err
}

func (s *Store) Get(scope, kind, id string) (*storage.Envelope, error) {
	var env storage.Envelope
	err := s.pool.QueryRow(context.Background(),
		`SELECT ver, scheme, nonce, ciphertext
		 FROM records WHERE scope = $1 AND kind = $2 AND id = $3`,
		scope, kind, id).Scan(&env.Ver, &env.Scheme, &env.Nonce, &env.Ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFoundError(context.Background(), s.pool, scope, kind, id)
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Store) List(scope, kind string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT id FROM records WHERE scope = $1 AND kind = $2`,
		scope, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Delete(scope, kind, id string) error {
	tag, err := s.pool.Exec(context.Background(),
		`DELETE FROM records WHERE scope = $1 AND kind = $2 AND id = $3`,
		scope, kind, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFoundError(context.Background(), s.pool, scope, kind, id)
	}
	return nil
}

func (s *Store) Batch(scope string, fn func(tx storage.BatchTx) error) error {
	pgTx, err := s.pool.Begin(context.Background())
	if err != nil {
		return err
	}
	defer pgTx.Rollback(context.Background()) //nolint:errcheck

	btx := &pgBatchTx{tx: pgTx, scope: scope}
	if err := fn(btx); err != nil {
		return err
	}
	return pgTx.Commit(context.Background())
}

type pgBatchTx struct {
	tx    pgx.Tx
	scope string
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Put(kind, id string, envelope *storage.Envelope) error {
	_, err := btx.tx.Exec(context.Background(), upsertSQL,
		btx.scope, kind, id, envelope.Ver, envelope.Scheme, envelope.Nonce, envelope.Ciphertext)
	return err
}

func (btx *pgBatchTx) Delete(kind, id string) error {
	tag, err := btx.tx.Exec(context.Background(),
		`DELETE FROM records WHERE scope = $1 AND kind = $2 AND id = $3`,
		btx.scope, kind, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

// querier abstracts both *pgxpool.Pool and pgx.Tx for shared queries.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// notFoundError determines whether a missing record is due to a missing scope
// or a missing record within an existing scope. This preserves the BBolt
// semantic of distinguishing ErrScopeNotFound from ErrNotFound.
func notFoundError(ctx context.Context, q querier, scope, kind, id string) error {
	var exists bool
	_ = q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE scope = $1 LIMIT 1)`,
		scope).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", scope, storage.ErrScopeNotFound)
	}
	return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
}
