package blocklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/poolup/carpool/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	blocked map[uuid.UUID][]uuid.UUID
	err     error
	calls   int
}

func (s *stubSource) ListBlocked(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.blocked[userID], nil
}

func TestBlockedSet_CacheMissLoadsFromSource(t *testing.T) {
	userID := uuid.New()
	blockedID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{})
	mock.ExpectSAdd(key, blockedID.String()).SetVal(1)
	mock.ExpectExpire(key, 60*time.Second).SetVal(true)

	source := &stubSource{blocked: map[uuid.UUID][]uuid.UUID{userID: {blockedID}}}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	require.Len(t, set, 1)
	assert.Contains(t, set, blockedID)
	assert.Equal(t, 1, source.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockedSet_CacheHitSkipsSource(t *testing.T) {
	userID := uuid.New()
	blockedID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{blockedID.String()})

	source := &stubSource{}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	assert.Contains(t, set, blockedID)
	assert.Equal(t, 0, source.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockedSet_EmptyListIsCached(t *testing.T) {
	userID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{})
	mock.ExpectSAdd(key, emptyMarker).SetVal(1)
	mock.ExpectExpire(key, 60*time.Second).SetVal(true)

	source := &stubSource{}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	assert.Empty(t, set)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockedSet_MarkerCacheHitIsEmpty(t *testing.T) {
	userID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{emptyMarker})

	source := &stubSource{}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	assert.Empty(t, set)
	assert.Equal(t, 0, source.calls)
}

func TestBlockedSet_RedisDownFallsThroughToSource(t *testing.T) {
	userID := uuid.New()
	blockedID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetErr(errors.New("connection refused"))
	mock.ExpectSAdd(key, blockedID.String()).SetErr(errors.New("connection refused"))

	source := &stubSource{blocked: map[uuid.UUID][]uuid.UUID{userID: {blockedID}}}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	assert.Contains(t, set, blockedID)
}

func TestBlockedSet_SourceDownFailsOpen(t *testing.T) {
	userID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{})

	source := &stubSource{err: errors.New("postgres unavailable")}
	cache := NewCache(source, &redis.Client{Client: db}, 60*time.Second)

	set := cache.BlockedSet(context.Background(), userID)

	assert.Empty(t, set)
}

func TestIsBlocked(t *testing.T) {
	userID := uuid.New()
	blockedID := uuid.New()
	strangerID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectSMembers(key).SetVal([]string{blockedID.String()})
	mock.ExpectSMembers(key).SetVal([]string{blockedID.String()})

	cache := NewCache(&stubSource{}, &redis.Client{Client: db}, 60*time.Second)

	assert.True(t, cache.IsBlocked(context.Background(), userID, blockedID))
	assert.False(t, cache.IsBlocked(context.Background(), userID, strangerID))
}

func TestInvalidate(t *testing.T) {
	userID := uuid.New()
	key := cacheKeyPrefix + userID.String()

	db, mock := redismock.NewClientMock()
	mock.ExpectDel(key).SetVal(1)

	cache := NewCache(&stubSource{}, &redis.Client{Client: db}, 60*time.Second)
	cache.Invalidate(context.Background(), userID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
