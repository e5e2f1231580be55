package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// UserLoader is the source of truth behind the cache.
type UserLoader interface {
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// UserCache is a read-through cache of user profiles. Entries expire after ttl;
// password hashes are never cached.
type UserCache struct {
	rdb    *redis.Client
	loader UserLoader
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewUserCache(rdb *redis.Client, loader UserLoader, ttl time.Duration, logger logrus.FieldLogger) *UserCache {
	return &UserCache{rdb: rdb, loader: loader, ttl: ttl, logger: logger}
}

func userKey(id uuid.UUID) string {
	return "user:" + id.String()
}

// User returns the cached profile or loads and caches it. A Redis failure
// falls back to the loader.
func (c *UserCache) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	data, err := c.rdb.Get(ctx, userKey(id)).Bytes()
	switch {
	case err == nil:
		var u models.User
		if jerr := json.Unmarshal(data, &u); jerr == nil {
			return &u, nil
		}
		c.logger.WithField("user", id).Warn("dropping undecodable cached user")
		c.rdb.Del(ctx, userKey(id))
	case !errors.Is(err, redis.Nil):
		c.logger.WithField("user", id).Warnf("user cache read failed: %v", err)
	}

	u, err := c.loader.User(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, u)
	return u, nil
}

func (c *UserCache) store(ctx context.Context, u *models.User) {
	cached := *u
	cached.Password = ""
	data, err := json.Marshal(&cached)
	if err != nil {
		c.logger.WithField("user", u.ID).Warnf("failed to marshal user for cache: %v", err)
		return
	}
	if err := c.rdb.Set(ctx, userKey(u.ID), data, c.ttl).Err(); err != nil {
		c.logger.WithField("user", u.ID).Warnf("user cache write failed: %v", err)
	}
}

// Invalidate drops a user so the next read reloads it.
func (c *UserCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, userKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user %s: %w", id, err)
	}
	return nil
}
