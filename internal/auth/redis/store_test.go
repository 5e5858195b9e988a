// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand/deckhand/internal/auth"
	"github.com/deckhand/deckhand/internal/auth/redis"
	"github.com/deckhand/deckhand/internal/auth/storetest"
	"github.com/deckhand/deckhand/internal/identity"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.New(client, opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newStore(t)
	storetest.RunSessionStoreContract(t, store)
}

func TestRedisStore_KeyTTLMatchesExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)

	now := time.Now()
	s, err := auth.NewSession("abc", identity.Identity{ID: "u1", Email: "a@b.com"}, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, s))

	assert.True(t, mr.Exists(redis.DefaultPrefix+"abc"))
	ttl := mr.TTL(redis.DefaultPrefix + "abc")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)

	mr.FastForward(2 * time.Hour)
	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_DeleteExpiredPrunesIndex(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithClock(func() time.Time { return clock }))

	who := identity.Identity{ID: "u1", Email: "a@b.com"}
	short, err := auth.NewSession("short", who, now, now.Add(time.Minute))
	require.NoError(t, err)
	long, err := auth.NewSession("long", who, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, short))
	require.NoError(t, store.Put(ctx, long))

	members, err := mr.ZMembers("test:index")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"short", "long"}, members)

	clock = now.Add(10 * time.Minute)
	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	members, err = mr.ZMembers("test:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, members)
	assert.False(t, mr.Exists("test:short"))
}

func TestRedisStore_DeleteExpiredKeepsSessionsLaterInTheSecond(t *testing.T) {
	ctx := context.Background()
	clock := time.Now().Truncate(time.Second).Add(200 * time.Millisecond)
	store, mr := newStore(t, redis.WithPrefix("test:"), redis.WithClock(func() time.Time { return clock }))

	s, err := auth.NewSession("soon", identity.Identity{ID: "u1", Email: "a@b.com"}, clock, clock.Add(500*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, s))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, mr.Exists("test:soon"))

	clock = clock.Add(500 * time.Millisecond)
	n, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisStore_TransportFailure(t *testing.T) {
	ctx := context.Background()
	store, mr := newStore(t)
	mr.SetError("LOADING server is loading")

	_, err := store.Get(ctx, "abc")
	require.Error(t, err)
	assert.Error(t, store.Delete(ctx, "abc"))
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := redis.Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	_, err = redis.Dial(context.Background(), "not a url")
	require.Error(t, err)
}
