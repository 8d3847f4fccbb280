package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSet(t *testing.T) *RedisVisitedSet {
	addr := os.Getenv("LISTINGSMITH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping redis test - LISTINGSMITH_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	set := NewRedisVisitedSet(client, t.Name()+time.Now().Format("150405.000000"), time.Minute)
	if err := set.Ping(context.Background()); err != nil {
		t.Skipf("Skipping redis test - server unreachable: %v", err)
	}
	return set
}

func TestRedisVisitedSetAdd(t *testing.T) {
	set := newTestSet(t)
	ctx := context.Background()

	added, err := set.Add(ctx, "https://example.fr/annonces")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = set.Add(ctx, "https://example.fr/annonces")
	require.NoError(t, err)
	assert.False(t, added, "second insert must report an existing member")

	ok, err := set.Contains(ctx, "https://example.fr/annonces")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Contains(ctx, "https://example.fr/autre")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisVisitedSetKeysAreNamespaced(t *testing.T) {
	a := NewRedisVisitedSet(nil, "site-a", time.Minute)
	b := NewRedisVisitedSet(nil, "site-b", time.Minute)

	assert.NotEqual(t, a.key("https://example.fr"), b.key("https://example.fr"))
	assert.Equal(t, a.key("https://example.fr"), a.key("https://example.fr"))
}
