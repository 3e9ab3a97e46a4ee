// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

package kv

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisStore implements Store on a Redis instance. Records live under
// "<collection>:<key>" with no TTL; expiry of lockout records is handled
// lazily by the core, not by Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore and verifies connectivity.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping failure takes precedence
		return nil, oops.Code("KV_REDIS_UNAVAILABLE").
			With("addr", addr).
			Wrap(err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the record stored under (collection, key), or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, collection Collection, key string) ([]byte, error) {
	record, err := s.client.Get(ctx, redisKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("KV_GET_FAILED").
			With("collection", string(collection)).
			Wrap(err)
	}
	return record, nil
}

// Put stores the record under (collection, key).
func (s *RedisStore) Put(ctx context.Context, collection Collection, key string, record []byte) error {
	if err := s.client.Set(ctx, redisKey(collection, key), record, 0).Err(); err != nil {
		return oops.Code("KV_PUT_FAILED").
			With("collection", string(collection)).
			Wrap(err)
	}
	return nil
}

// Delete removes the record under (collection, key) if present.
func (s *RedisStore) Delete(ctx context.Context, collection Collection, key string) error {
	if err := s.client.Del(ctx, redisKey(collection, key)).Err(); err != nil {
		return oops.Code("KV_DELETE_FAILED").
			With("collection", string(collection)).
			Wrap(err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close() //nolint:wrapcheck // driver close passthrough
}

func redisKey(collection Collection, key string) string {
	return string(collection) + ":" + key
}
