// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protecrescue/rescueauth/pkg/errutil"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock pool")
	t.Cleanup(mock.Close)
	return NewPostgresStoreFromPool(mock), mock
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kv_records`).
		WithArgs("credentials", "alice@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow([]byte(`{"id":"1"}`)))

	got, err := store.Get(context.Background(), Credentials, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"1"}`), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMissing(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kv_records`).
		WithArgs("credentials", "nobody").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), Credentials, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetQueryError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kv_records`).
		WithArgs("credentials", "alice@example.com").
		WillReturnError(errors.New("connection refused"))

	_, err := store.Get(context.Background(), Credentials, "alice@example.com")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "KV_GET_FAILED")
	errutil.AssertErrorContext(t, err, "collection", "credentials")
}

func TestPostgresStore_Put(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO kv_records`).
		WithArgs("lockouts", "alice@example.com", []byte(`{"failure_count":1}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Put(context.Background(), Lockouts, "alice@example.com", []byte(`{"failure_count":1}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutConnectionError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO kv_records`).
		WithArgs("lockouts", "alice@example.com", []byte("x")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})

	err := store.Put(context.Background(), Lockouts, "alice@example.com", []byte("x"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "KV_PUT_FAILED")
	errutil.AssertErrorContext(t, err, "pg_code", pgerrcode.ConnectionFailure)
	errutil.AssertErrorContext(t, err, "unavailable", true)
}

func TestPostgresStore_PutDataError(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO kv_records`).
		WithArgs("credentials", "alice@example.com", []byte("x")).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.NotNullViolation})

	err := store.Put(context.Background(), Credentials, "alice@example.com", []byte("x"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "KV_PUT_FAILED")
	errutil.AssertErrorContext(t, err, "pg_code", pgerrcode.NotNullViolation)

	// Data problems are not flagged as outages.
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.NotContains(t, oopsErr.Context(), "unavailable")
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM kv_records`).
		WithArgs("sessions", "tokenhash").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), Sessions, "tokenhash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMissingRows(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	// Zero rows affected is still success: Delete is idempotent.
	mock.ExpectExec(`DELETE FROM kv_records`).
		WithArgs("sessions", "never-existed").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.Delete(context.Background(), Sessions, "never-existed"))
}
