// Package cache is a read-through Redis cache for hot chat room lookups.
// It is strictly best-effort: every failure, including an open circuit
// breaker, degrades to a miss and the caller falls back to the store. A nil
// *Cache is valid and behaves as a cache that never hits, which is how the
// engines run in single-instance mode without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/metrics"
	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

const (
	roomKeyPrefix  = "huddle:chat:room:"
	publicListKey  = "huddle:chat:rooms:public"
	entryTTL       = 30 * time.Second
	roomCache      = "chat_room"
	publicCache    = "chat_rooms_public"
	breakerName    = "redis-cache"
	connectTimeout = 5 * time.Second
)

// Cache wraps a Redis client behind a circuit breaker.
type Cache struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
}

// New connects to Redis and verifies the connection immediately.
func New(addr, password string) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateHalfOpen:
				stateVal = 1
			case gobreaker.StateOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	logging.Info(context.Background(), "connected to Redis cache", zap.String("addr", addr))
	return &Cache{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
		ttl:    entryTTL,
	}, nil
}

// Client exposes the underlying Redis client so other subsystems (the rate
// limiter's store) can share the connection pool. Nil on a nil cache.
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}

// GetRoom returns the cached room, or false on any kind of miss.
func (c *Cache) GetRoom(ctx context.Context, id types.RoomID) (*store.ChatRoom, bool) {
	data, ok := c.get(ctx, roomKeyPrefix+string(id), roomCache)
	if !ok {
		return nil, false
	}
	var room store.ChatRoom
	if err := json.Unmarshal(data, &room); err != nil {
		logging.Warn(ctx, "dropping undecodable cache entry", zap.String("cache", roomCache), zap.Error(err))
		return nil, false
	}
	return &room, true
}

// SetRoom stores the full (unredacted) room record; redaction happens at
// serve time, per caller.
func (c *Cache) SetRoom(ctx context.Context, room *store.ChatRoom) {
	data, err := json.Marshal(room)
	if err != nil {
		logging.Warn(ctx, "failed to encode room for cache", zap.Error(err))
		return
	}
	c.set(ctx, roomKeyPrefix+string(room.ID), data)
}

// GetPublicRooms returns the cached public room list, or false on a miss.
func (c *Cache) GetPublicRooms(ctx context.Context) ([]*store.ChatRoom, bool) {
	data, ok := c.get(ctx, publicListKey, publicCache)
	if !ok {
		return nil, false
	}
	var rooms []*store.ChatRoom
	if err := json.Unmarshal(data, &rooms); err != nil {
		logging.Warn(ctx, "dropping undecodable cache entry", zap.String("cache", publicCache), zap.Error(err))
		return nil, false
	}
	return rooms, true
}

// SetPublicRooms stores the ordered public room list.
func (c *Cache) SetPublicRooms(ctx context.Context, rooms []*store.ChatRoom) {
	data, err := json.Marshal(rooms)
	if err != nil {
		logging.Warn(ctx, "failed to encode public room list for cache", zap.Error(err))
		return
	}
	c.set(ctx, publicListKey, data)
}

// InvalidateRoom drops the room entry and the shared public list. Every room
// mutation goes through here so readers never see a stale membership set for
// longer than one round trip.
func (c *Cache) InvalidateRoom(ctx context.Context, id types.RoomID) {
	c.del(ctx, roomKeyPrefix+string(id), publicListKey)
}

// ClearPublicList drops only the shared public list key.
func (c *Cache) ClearPublicList(ctx context.Context) {
	c.del(ctx, publicListKey)
}

// Ping verifies the Redis connection. A nil cache always reports healthy.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) get(ctx context.Context, key, cacheName string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		c.reportFailure(ctx, "get", key, err)
		metrics.CacheMisses.WithLabelValues(cacheName).Inc()
		return nil, false
	}

	data, _ := res.([]byte)
	if len(data) == 0 {
		metrics.CacheMisses.WithLabelValues(cacheName).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(cacheName).Inc()
	return data, true
}

func (c *Cache) set(ctx context.Context, key string, data []byte) {
	if c == nil || c.client == nil {
		return
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil {
		c.reportFailure(ctx, "set", key, err)
	}
}

func (c *Cache) del(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil {
		return
	}

	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		c.reportFailure(ctx, "del", keys[0], err)
	}
}

func (c *Cache) reportFailure(ctx context.Context, op, key string, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerFailures.WithLabelValues(breakerName).Inc()
		logging.Warn(ctx, "cache circuit breaker open, degrading to miss",
			zap.String("op", op), zap.String("key", key))
		return
	}
	logging.Warn(ctx, "cache operation failed",
		zap.String("op", op), zap.String("key", key), zap.Error(err))
}
