package session

import (
	"context"
	"testing"
	"time"

	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func realClock(t testing.TB) chrono.TimeAPI {
	clock, err := chrono.NewStandardImpl("UTC")
	require.NoError(t, err)
	return clock
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, "test:session", realClock(t)), m
}

func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := store.AddFailure(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = store.AddFailure(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	set := NewCookieSet(
		time.Now(), time.Minute,
		[]Cookie{{Name: "JSESSIONID", Value: "B"}, {Name: "CASTGC", Value: "X"}},
	)
	require.NoError(t, store.Set(ctx, set))

	cached, err := store.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(set.Cookies, cached.Cookies))
	require.True(t, set.ExpiresAt.Equal(cached.ExpiresAt))

	// a successful write resets the counter
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = store.AddFailure(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.ClearCookies(ctx))
	_, err = store.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, store.Set(ctx, set))
	_, err = store.AddFailure(ctx, time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore(time.Minute, realClock(t)))
}

func TestRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	testStoreContract(t, store)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(time.Hour, clock)

	set := NewCookieSet(clock.Now(), time.Minute*30, []Cookie{{Name: "JSESSIONID", Value: "A"}})
	require.NoError(t, store.Set(ctx, set))

	_, err := store.Get(ctx)
	require.NoError(t, err)

	clock.Advance(time.Minute * 31)
	_, err = store.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, m := newRedisStore(t)

	set := NewCookieSet(time.Now(), time.Minute*30, []Cookie{{Name: "JSESSIONID", Value: "A"}})
	require.NoError(t, store.Set(ctx, set))
	require.True(t, m.Exists("test:session:cookies"))

	m.FastForward(time.Minute * 31)
	_, err := store.Get(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	// already expired sets are never written
	stale := NewCookieSet(time.Now().Add(-time.Hour), time.Minute, []Cookie{{Name: "JSESSIONID", Value: "B"}})
	require.NoError(t, store.Set(ctx, stale))
	require.False(t, m.Exists("test:session:cookies"))
}

func TestMemoryStoreFailureCooldown(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC))
	store := NewMemoryStore(time.Hour, clock)

	_, err := store.AddFailure(ctx, time.Minute*10)
	require.NoError(t, err)
	clock.Advance(time.Minute * 9)
	n, err := store.AddFailure(ctx, time.Minute*10)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// the cooldown runs from the latest failure
	clock.Advance(time.Minute * 9)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	clock.Advance(time.Minute)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = store.AddFailure(ctx, time.Minute*10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRedisStoreFailureCooldown(t *testing.T) {
	ctx := context.Background()
	store, m := newRedisStore(t)

	_, err := store.AddFailure(ctx, time.Minute*10)
	require.NoError(t, err)
	m.FastForward(time.Minute * 9)
	n, err := store.AddFailure(ctx, time.Minute*10)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	m.FastForward(time.Minute * 9)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	m.FastForward(time.Minute)
	n, err = store.Failures(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
