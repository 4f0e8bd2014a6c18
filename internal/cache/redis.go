package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rutinas/internal/logger"
)

const timezoneKeyPrefix = "rutinas:tz:"

// RedisTimezoneCache shares timezone lookups across service instances.
type RedisTimezoneCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisTimezoneCache connects to addr and verifies the connection with a ping.
func NewRedisTimezoneCache(log *logger.Logger, addr string, ttl time.Duration) (*RedisTimezoneCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisTimezoneCache{
		log: log.With("service", "RedisTimezoneCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *RedisTimezoneCache) Get(ctx context.Context, userID uuid.UUID) (string, bool, error) {
	tz, err := c.rdb.Get(ctx, timezoneKeyPrefix+userID.String()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get timezone: %w", err)
	}
	return tz, true, nil
}

func (c *RedisTimezoneCache) Set(ctx context.Context, userID uuid.UUID, tz string) error {
	if err := c.rdb.Set(ctx, timezoneKeyPrefix+userID.String(), tz, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set timezone: %w", err)
	}
	return nil
}

func (c *RedisTimezoneCache) Delete(ctx context.Context, userID uuid.UUID) error {
	if err := c.rdb.Del(ctx, timezoneKeyPrefix+userID.String()).Err(); err != nil {
		return fmt.Errorf("redis delete timezone: %w", err)
	}
	return nil
}

func (c *RedisTimezoneCache) Close() error {
	c.log.Debug("closing redis timezone cache")
	return c.rdb.Close()
}
