// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package kv

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PgxPool is the subset of pgxpool.Pool the driver uses. Satisfied by
// pgxmock in unit tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a single kv_records table. Put is an
// upsert, so each record write is atomic at the row level.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore connects a pool and pings it with backoff, waiting for
// the database to accept connections.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("KV_POSTGRES_CONFIG").
			With("operation", "create pool").
			Wrap(err)
	}

	backoff := retry.WithMaxDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := pool.Ping(ctx); pingErr != nil {
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("KV_POSTGRES_UNAVAILABLE").
			With("operation", "ping").
			Wrap(err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Used by tests.
func NewPostgresStoreFromPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the record stored under (collection, key), or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection Collection, key string) ([]byte, error) {
	var record []byte
	err := s.pool.QueryRow(ctx, `
		SELECT record FROM kv_records
		WHERE collection = $1 AND key = $2
	`, string(collection), key).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapPgError("KV_GET_FAILED", collection, err)
	}
	return record, nil
}

// Put stores the record under (collection, key).
func (s *PostgresStore) Put(ctx context.Context, collection Collection, key string, record []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (collection, key, record, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, key) DO UPDATE
		SET record = EXCLUDED.record, updated_at = now()
	`, string(collection), key, record)
	if err != nil {
		return wrapPgError("KV_PUT_FAILED", collection, err)
	}
	return nil
}

// Delete removes the record under (collection, key) if present.
func (s *PostgresStore) Delete(ctx context.Context, collection Collection, key string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM kv_records
		WHERE collection = $1 AND key = $2
	`, string(collection), key)
	if err != nil {
		return wrapPgError("KV_DELETE_FAILED", collection, err)
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// wrapPgError attaches the postgres error class so operators can tell a
// connectivity outage from a data problem.
func wrapPgError(code string, collection Collection, err error) error {
	builder := oops.Code(code).With("collection", string(collection))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		builder = builder.With("pg_code", pgErr.Code)
		if pgerrcode.IsConnectionException(pgErr.Code) {
			builder = builder.With("unavailable", true)
		}
	}

	return builder.Wrap(err)
}
