// Package infra holds shared-state adapters. Today that is the Redis
// content guard: cross-replica duplicate suppression for outbound social
// content. A single-replica deployment runs fine without it; the
// registry's in-process FIFO already suppresses local duplicates.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// contentTTL bounds how long a published fingerprint blocks re-posting.
const contentTTL = 7 * 24 * time.Hour

// RedisContentGuard claims content fingerprints in Redis with SETNX so
// that only one replica ever publishes a given post.
type RedisContentGuard struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisContentGuard connects and pings. The caller decides whether a
// connection failure is fatal or means running without the guard.
func NewRedisContentGuard(addr, password string, db int) (*RedisContentGuard, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	slog.Info("redis content guard connected", "addr", addr, "db", db)
	return &RedisContentGuard{rdb: rdb, log: slog.Default().With("component", "infra")}, nil
}

// Claim atomically claims a content hash. False means another replica
// (or an earlier run) already published it. Redis errors admit the post:
// a flaky guard must not silence the agent.
func (g *RedisContentGuard) Claim(ctx context.Context, hash string) bool {
	ok, err := g.rdb.SetNX(ctx, "parapool:content:"+hash, 1, contentTTL).Result()
	if err != nil {
		g.log.Warn("content guard unavailable, admitting post", "err", err)
		return true
	}
	return ok
}

// Release frees a claim after a failed publish so a retry can post.
func (g *RedisContentGuard) Release(ctx context.Context, hash string) {
	if err := g.rdb.Del(ctx, "parapool:content:"+hash).Err(); err != nil {
		g.log.Warn("content claim release failed", "hash", hash, "err", err)
	}
}

// Close shuts the connection down.
func (g *RedisContentGuard) Close() error { return g.rdb.Close() }
