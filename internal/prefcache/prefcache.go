// Package prefcache is a Redis read-through cache in front of the
// preferences store.
package prefcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/clubnotify/internal/model"
)

const keyPrefix = "prefs:"

// DefaultTTL is how long cached preferences live when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Backend is the authoritative preferences store.
type Backend interface {
	GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error)
	SavePreferences(ctx context.Context, p model.NotificationPreferences) (model.NotificationPreferences, error)
	DeletePreferences(ctx context.Context, userID string) error
}

// Cache serves preferences from Redis, loading from the backend on a miss.
// Redis failures are logged and fall through to the backend.
type Cache struct {
	rdb     redis.UniversalClient
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

func New(rdb redis.UniversalClient, backend Backend, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, backend: backend, ttl: ttl, logger: logger}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func key(userID string) string {
	return keyPrefix + userID
}

func (c *Cache) GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error) {
	raw, err := c.rdb.Get(ctx, key(userID)).Bytes()
	switch {
	case err == nil:
		var p model.NotificationPreferences
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		c.logger.Warn("discarding corrupt cached preferences", "user_id", userID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("preferences cache read failed", "user_id", userID, "error", err)
	}

	p, err := c.backend.GetPreferences(ctx, userID)
	if err != nil {
		return model.NotificationPreferences{}, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key(userID), data, c.ttl).Err(); err != nil {
			c.logger.Debug("preferences cache write failed", "user_id", userID, "error", err)
		}
	}
	return p, nil
}

// SavePreferences writes through to the backend and drops the cached copy.
func (c *Cache) SavePreferences(ctx context.Context, p model.NotificationPreferences) (model.NotificationPreferences, error) {
	saved, err := c.backend.SavePreferences(ctx, p)
	if err != nil {
		return model.NotificationPreferences{}, err
	}
	c.Invalidate(ctx, p.UserID)
	return saved, nil
}

func (c *Cache) DeletePreferences(ctx context.Context, userID string) error {
	if err := c.backend.DeletePreferences(ctx, userID); err != nil {
		return err
	}
	c.Invalidate(ctx, userID)
	return nil
}

// Invalidate removes a user's cached preferences.
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if err := c.rdb.Del(ctx, key(userID)).Err(); err != nil {
		c.logger.Warn("preferences cache invalidate failed", "user_id", userID, "error", err)
	}
}
