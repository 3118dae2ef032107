package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Compile-time interface compliance check.
var _ Client = (*client)(nil)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = redis.Nil

// Client provides the Redis operations streamwatch needs.
type Client interface {
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type client struct {
	log    logrus.FieldLogger
	cfg    Config
	client *redis.Client
}

// NewClient creates a new Redis client.
func NewClient(log logrus.FieldLogger, cfg Config) Client {
	return &client{
		log: log.WithField("component", "redis"),
		cfg: cfg,
	}
}

// Start initializes the Redis connection pool and verifies connectivity.
func (c *client) Start(ctx context.Context) error {
	c.log.WithFields(logrus.Fields{
		"address": c.cfg.Address,
		"db":      c.cfg.DB,
	}).Info("Initializing Redis client")

	c.client = redis.NewClient(&redis.Options{
		Addr:         c.cfg.Address,
		Password:     c.cfg.Password,
		DB:           c.cfg.DB,
		DialTimeout:  c.cfg.DialTimeout,
		ReadTimeout:  c.cfg.ReadTimeout,
		WriteTimeout: c.cfg.WriteTimeout,
		PoolSize:     c.cfg.PoolSize,
	})

	// Verify connection
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.log.Info("Redis client started successfully")

	return nil
}

// Stop closes the Redis connection pool.
func (c *client) Stop() error {
	c.log.Info("Stopping Redis client")

	if c.client != nil {
		return c.client.Close()
	}

	return nil
}

// Ping verifies Redis connectivity.
func (c *client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get retrieves a value by key. Returns ErrNotFound for missing keys.
func (c *client) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Set stores a key-value pair with optional TTL (0 = no expiration).
func (c *client) Set(
	ctx context.Context,
	key,
	value string,
	ttl time.Duration,
) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}
