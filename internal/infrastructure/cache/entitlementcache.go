package cache

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"captionly/internal/shared/logger"
)

// CachedEntitlement is the read-side snapshot of a user's entitlement kept in
// Redis to shave the DB hit off the hot consume path.
type CachedEntitlement struct {
	Tier            string
	SubscriptionEnd time.Time // zero when free
	TrialActivated  bool
	NotFound        bool // null marker: user confirmed absent in DB
}

// EntitlementCache caches entitlement snapshots keyed by user id.
type EntitlementCache interface {
	GetSnapshot(ctx context.Context, userID uint) (*CachedEntitlement, error)
	SetSnapshot(ctx context.Context, userID uint, snapshot *CachedEntitlement) error
	Invalidate(ctx context.Context, userID uint) error
	// SetNullMarker caches a short-lived marker for users with no entitlement
	// row, preventing repeated DB lookups (cache penetration protection).
	SetNullMarker(ctx context.Context, userID uint) error
}

const (
	entitlementKeyPrefix = "entitlement:user:"
	baseEntitlementTTL   = 10 * time.Minute
	entitlementTTLJitter = 5 * time.Minute // TTL range: 10-15 min (anti-stampede)
	entNullMarkerTTL     = 2 * time.Minute

	fieldTier            = "tier"
	fieldSubscriptionEnd = "subscription_end"
	fieldTrialActivated  = "trial_activated"
	fieldEntNullMarker   = "_null"
)

// RedisEntitlementCache implements EntitlementCache using a Redis hash.
type RedisEntitlementCache struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisEntitlementCache creates a new Redis-based entitlement cache.
func NewRedisEntitlementCache(client *redis.Client, logger logger.Interface) *RedisEntitlementCache {
	return &RedisEntitlementCache{
		client: client,
		logger: logger,
	}
}

func (c *RedisEntitlementCache) key(userID uint) string {
	return fmt.Sprintf("%s%d", entitlementKeyPrefix, userID)
}

// GetSnapshot retrieves an entitlement snapshot from cache. A nil result with
// nil error is a cache miss.
func (c *RedisEntitlementCache) GetSnapshot(ctx context.Context, userID uint) (*CachedEntitlement, error) {
	result, err := c.client.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement from cache: %w", err)
	}

	if len(result) == 0 {
		return nil, nil // cache miss
	}

	if result[fieldEntNullMarker] == "1" {
		return &CachedEntitlement{NotFound: true}, nil
	}

	snapshot := &CachedEntitlement{}

	if tier, ok := result[fieldTier]; ok {
		snapshot.Tier = tier
	}
	if endStr, ok := result[fieldSubscriptionEnd]; ok {
		endUnix, _ := strconv.ParseInt(endStr, 10, 64)
		if endUnix > 0 {
			snapshot.SubscriptionEnd = time.Unix(endUnix, 0).UTC()
		}
	}
	if trialStr, ok := result[fieldTrialActivated]; ok {
		snapshot.TrialActivated = trialStr == "1"
	}

	return snapshot, nil
}

// SetSnapshot stores an entitlement snapshot in cache.
func (c *RedisEntitlementCache) SetSnapshot(ctx context.Context, userID uint, snapshot *CachedEntitlement) error {
	var endUnix int64
	if !snapshot.SubscriptionEnd.IsZero() {
		endUnix = snapshot.SubscriptionEnd.Unix()
	}

	fields := map[string]interface{}{
		fieldTier:            snapshot.Tier,
		fieldSubscriptionEnd: endUnix,
		fieldTrialActivated:  boolToInt(snapshot.TrialActivated),
	}

	key := c.key(userID)
	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, entitlementTTLWithJitter())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set entitlement in cache: %w", err)
	}

	c.logger.Debugw("entitlement snapshot cached",
		"user_id", userID,
		"tier", snapshot.Tier,
	)

	return nil
}

// Invalidate removes the snapshot from cache. Called after every state
// transition so readers fall back to the DB.
func (c *RedisEntitlementCache) Invalidate(ctx context.Context, userID uint) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate entitlement cache: %w", err)
	}

	c.logger.Debugw("entitlement cache invalidated", "user_id", userID)

	return nil
}

// SetNullMarker stores a short-lived marker for users with no entitlement row.
func (c *RedisEntitlementCache) SetNullMarker(ctx context.Context, userID uint) error {
	key := c.key(userID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fieldEntNullMarker, "1")
	pipe.Expire(ctx, key, entNullMarkerTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set null marker in cache: %w", err)
	}

	return nil
}

// entitlementTTLWithJitter returns a randomized TTL to prevent cache stampede.
func entitlementTTLWithJitter() time.Duration {
	jitter := time.Duration(rand.Int63n(int64(entitlementTTLJitter)))
	return baseEntitlementTTL + jitter
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
