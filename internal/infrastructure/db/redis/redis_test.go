package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConnect_FailsWithoutServer(t *testing.T) {
	client, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	require.Nil(t, client)
}

func TestIdempotencyStore_Defaults(t *testing.T) {
	s := NewIdempotencyStore(nil, 0)
	require.Equal(t, defaultIdempotencyTTL, s.ttl)
	require.Equal(t, "idem:withdraw:xtr_1:k-1", s.key("xtr_1:k-1"))
}

func TestIdempotencyStore_PropagatesErrors(t *testing.T) {
	s := NewIdempotencyStore(unreachable(t), time.Minute)

	_, found, err := s.Lookup(context.Background(), "xtr_1:k-1")
	require.Error(t, err)
	require.False(t, found)
	require.ErrorContains(t, err, "idempotency lookup")

	require.ErrorContains(t, s.Remember(context.Background(), "xtr_1:k-1", "TX_1"), "idempotency remember")
}

func TestLocker_Defaults(t *testing.T) {
	l := NewLocker(nil, 0, zerolog.Nop())
	require.Equal(t, defaultLockTTL, l.ttl)
}

func TestLocker_LockFailsWithoutServer(t *testing.T) {
	l := NewLocker(unreachable(t), time.Second, zerolog.Nop())

	unlock, err := l.Lock(context.Background(), "xtr_1")
	require.Error(t, err)
	require.Nil(t, unlock)
	require.ErrorContains(t, err, "lock xtr_1")
}

func TestNewToken_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := newToken()
		require.NoError(t, err)
		require.Len(t, tok, 32)
		seen[tok] = struct{}{}
	}
	require.Len(t, seen, 100)
}
