package blocklist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/poolup/carpool/pkg/logger"
	"github.com/poolup/carpool/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "blocklist:"

// emptyMarker keeps users with no blocks cached too, so an empty block list
// doesn't hit postgres on every filter pass.
const emptyMarker = "__none__"

// Cache is a read-through cache over the block relation. Entries live for a
// bounded TTL; a newly added block may take up to one TTL to appear in filter
// results, which the matching layer accepts as a soft bound.
type Cache struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
}

// NewCache creates a block-list cache with the given TTL.
func NewCache(source Source, redisClient *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{source: source, redis: redisClient, ttl: ttl}
}

// BlockedSet returns the set of users blocked with respect to userID.
// Redis failures fall through to postgres; postgres failures fail open with
// an empty set so matching keeps working without block protection rather
// than going dark.
func (c *Cache) BlockedSet(ctx context.Context, userID uuid.UUID) map[uuid.UUID]struct{} {
	key := cacheKeyPrefix + userID.String()

	if members, err := c.redis.SMembers(ctx, key); err == nil && len(members) > 0 {
		return parseMembers(members)
	} else if err != nil && err != goredis.Nil {
		logger.Get().Warn("block-list cache read failed", zap.Error(err))
	}

	blocked, err := c.source.ListBlocked(ctx, userID)
	if err != nil {
		logger.Get().Error("block-list source read failed, failing open",
			zap.String("user_id", userID.String()), zap.Error(err))
		return map[uuid.UUID]struct{}{}
	}

	c.store(ctx, key, blocked)

	set := make(map[uuid.UUID]struct{}, len(blocked))
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	return set
}

// IsBlocked reports whether the two users block each other in either
// direction.
func (c *Cache) IsBlocked(ctx context.Context, userID, otherID uuid.UUID) bool {
	_, blocked := c.BlockedSet(ctx, userID)[otherID]
	return blocked
}

// Invalidate drops the cached entry for a user, forcing the next read through
// to the source. Called after an explicit block or unblock.
func (c *Cache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.redis.Delete(ctx, cacheKeyPrefix+userID.String()); err != nil {
		logger.Get().Warn("block-list cache invalidation failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (c *Cache) store(ctx context.Context, key string, blocked []uuid.UUID) {
	members := make([]interface{}, 0, len(blocked)+1)
	if len(blocked) == 0 {
		members = append(members, emptyMarker)
	}
	for _, id := range blocked {
		members = append(members, id.String())
	}

	if err := c.redis.SAdd(ctx, key, members...); err != nil {
		logger.Get().Warn("block-list cache write failed", zap.Error(err))
		return
	}
	if err := c.redis.Expire(ctx, key, c.ttl); err != nil {
		logger.Get().Warn("block-list cache expire failed", zap.Error(err))
	}
}

func parseMembers(members []string) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(members))
	for _, m := range members {
		if m == emptyMarker {
			continue
		}
		if id, err := uuid.Parse(m); err == nil {
			set[id] = struct{}{}
		}
	}
	return set
}
