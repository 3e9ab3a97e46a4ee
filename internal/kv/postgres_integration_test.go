// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

//go:build integration

package kv_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/protecrescue/rescueauth/internal/kv"
)

// setupPostgresContainer starts a PostgreSQL container, applies the schema
// and returns a connected store.
func setupPostgresContainer() (*kv.PostgresStore, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rescueauth_test"),
		postgres.WithUsername("rescueauth"),
		postgres.WithPassword("rescueauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	migrator, err := kv.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	store, err := kv.NewPostgresStore(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, nil, err
	}

	cleanup := func() {
		_ = store.Close()
		_ = container.Terminate(ctx)
	}
	return store, cleanup, nil
}

var _ = Describe("PostgresStore", func() {
	var store *kv.PostgresStore
	var cleanup func()

	BeforeEach(func() {
		var err error
		store, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("Put and Get", func() {
		It("round-trips a record", func() {
			ctx := context.Background()

			err := store.Put(ctx, kv.Credentials, "alice@example.com", []byte(`{"id":"1"}`))
			Expect(err).NotTo(HaveOccurred())

			got, err := store.Get(ctx, kv.Credentials, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(MatchJSON(`{"id":"1"}`))
		})

		It("replaces on repeated put", func() {
			ctx := context.Background()

			Expect(store.Put(ctx, kv.Lockouts, "alice", []byte(`{"failure_count":1}`))).To(Succeed())
			Expect(store.Put(ctx, kv.Lockouts, "alice", []byte(`{"failure_count":2}`))).To(Succeed())

			got, err := store.Get(ctx, kv.Lockouts, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(MatchJSON(`{"failure_count":2}`))
		})

		It("keeps collections apart", func() {
			ctx := context.Background()

			Expect(store.Put(ctx, kv.Credentials, "alice", []byte(`{"kind":"cred"}`))).To(Succeed())
			Expect(store.Put(ctx, kv.Sessions, "alice", []byte(`{"kind":"sess"}`))).To(Succeed())

			got, err := store.Get(ctx, kv.Sessions, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(MatchJSON(`{"kind":"sess"}`))
		})

		It("returns ErrNotFound for a missing key", func() {
			_, err := store.Get(context.Background(), kv.Credentials, "nobody")
			Expect(err).To(MatchError(kv.ErrNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes a record and tolerates repeats", func() {
			ctx := context.Background()

			Expect(store.Put(ctx, kv.Sessions, "tok", []byte(`{}`))).To(Succeed())
			Expect(store.Delete(ctx, kv.Sessions, "tok")).To(Succeed())
			Expect(store.Delete(ctx, kv.Sessions, "tok")).To(Succeed())

			_, err := store.Get(ctx, kv.Sessions, "tok")
			Expect(err).To(MatchError(kv.ErrNotFound))
		})
	})
})
