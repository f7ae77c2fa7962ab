package services

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// PushGuard ensures one broadcast per item across redelivered creation events
type PushGuard interface {
	// Acquire returns true when the caller should send the push for itemID
	Acquire(ctx context.Context, itemID string) (bool, error)
	// Release forgets itemID so a later delivery may try again
	Release(ctx context.Context, itemID string) error
}

// RedisPushGuard marks items with SETNX keys that expire after ttl
type RedisPushGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPushGuard(client *redis.Client, ttl time.Duration) *RedisPushGuard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisPushGuard{client: client, ttl: ttl}
}

func pushGuardKey(itemID string) string {
	return "push:item:" + itemID
}

func (g *RedisPushGuard) Acquire(ctx context.Context, itemID string) (bool, error) {
	return g.client.SetNX(ctx, pushGuardKey(itemID), time.Now().Unix(), g.ttl).Result()
}

func (g *RedisPushGuard) Release(ctx context.Context, itemID string) error {
	return g.client.Del(ctx, pushGuardKey(itemID)).Err()
}

// NopPushGuard lets every delivery through
type NopPushGuard struct{}

func (NopPushGuard) Acquire(context.Context, string) (bool, error) { return true, nil }
func (NopPushGuard) Release(context.Context, string) error         { return nil }
