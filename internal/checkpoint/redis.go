package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/redis"
)

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)

const redisKeyPrefix = "streamwatch:checkpoint:"

// RedisStore persists resume anchors in Redis.
type RedisStore struct {
	log   logrus.FieldLogger
	redis redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed checkpoint store. A zero ttl keeps
// checkpoints forever.
func NewRedisStore(log logrus.FieldLogger, redisClient redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		log:   log.WithField("component", "checkpoint"),
		redis: redisClient,
		ttl:   ttl,
	}
}

// Load returns the persisted anchor for source, or "" when none exists.
func (s *RedisStore) Load(ctx context.Context, source string) (string, error) {
	anchor, err := s.redis.Get(ctx, redisKeyPrefix+source)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("load checkpoint for %s: %w", source, err)
	}

	s.log.WithFields(logrus.Fields{
		"source": source,
		"anchor": anchor,
	}).Debug("Loaded checkpoint")

	return anchor, nil
}

// Save persists the anchor for source.
func (s *RedisStore) Save(ctx context.Context, source, anchor string) error {
	if anchor == "" {
		return nil
	}

	if err := s.redis.Set(ctx, redisKeyPrefix+source, anchor, s.ttl); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", source, err)
	}

	return nil
}
