package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const visitedPrefix = "listingsmith:visited:"

// RedisVisitedSet keeps a crawl's visited URLs in Redis so that several
// processes crawling the same site share one set. Keys expire after ttl.
type RedisVisitedSet struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisVisitedSet returns a visited set scoped to namespace, usually the
// seed domain of the crawl
func NewRedisVisitedSet(client *redis.Client, namespace string, ttl time.Duration) *RedisVisitedSet {
	return &RedisVisitedSet{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisVisitedSet) key(url string) string {
	sum := sha1.Sum([]byte(url))
	return visitedPrefix + r.namespace + ":" + hex.EncodeToString(sum[:])
}

// Add marks url visited. It reports false when url was already present.
func (r *RedisVisitedSet) Add(ctx context.Context, url string) (bool, error) {
	// SETNX is the atomic check-and-insert across processes
	added, err := r.client.SetNX(ctx, r.key(url), "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking %s visited: %w", url, err)
	}
	return added, nil
}

// Contains reports whether url has been visited
func (r *RedisVisitedSet) Contains(ctx context.Context, url string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(url)).Result()
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", url, err)
	}
	return n == 1, nil
}

// Ping checks connectivity before a crawl starts
func (r *RedisVisitedSet) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
