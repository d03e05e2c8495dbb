package dashboard

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	versionKey  = "dashboard:version"
	bumpChannel = "dashboard.bump"
	keyPrefix   = "dashboard:summary"
)

// Cache stores computed summaries in redis under a shared version number.
// Every write to transactions or products bumps the version, which orphans
// older entries until their TTL expires. A nil Cache, or one without a
// client, computes every summary.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group

	// Set while ListenForInvalidation runs; versions then come from bump
	// messages instead of a GET per read.
	listening atomic.Bool
	local     atomic.Int64
}

// NewCache builds the cache. client may be nil.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Version returns the current version, creating it at 1 when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	if c.listening.Load() {
		if v := c.local.Load(); v > 0 {
			return v, nil
		}
	}
	if err := c.client.SetNX(ctx, versionKey, 1, 0).Err(); err != nil {
		return 0, err
	}
	v, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil {
		return 0, err
	}
	c.observe(v)
	return v, nil
}

func (c *Cache) key(ctx context.Context, parts ...string) (string, error) {
	v, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return keyPrefix + ":" + strings.Join(parts, ":") + ":v" + strconv.FormatInt(v, 10), nil
}

// Summary returns the cached summary for parts, computing and storing it
// with load on a miss. Concurrent misses for the same key share one load.
// Redis errors are not returned; the summary is computed instead.
func (c *Cache) Summary(ctx context.Context, parts []string, load func(context.Context) (Summary, error)) (Summary, error) {
	if !c.enabled() {
		return load(ctx)
	}
	key, err := c.key(ctx, parts...)
	if err != nil {
		return load(ctx)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var cached Summary
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
		out, err := load(ctx)
		if err != nil {
			return Summary{}, err
		}
		if raw, err := json.Marshal(out); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return out, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// Bump moves every reader to a new version and tells other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	v, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	c.observe(v)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(v, 10)).Err()
}

// ListenForInvalidation follows bumps made by other processes so Version
// can answer locally. It returns once subscribed; the listener stops with
// ctx.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	// Seed after subscribing so no bump falls between the two.
	if _, err := c.Version(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	c.listening.Store(true)

	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if v, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					c.observe(v)
				}
			}
		}
	}()
	return nil
}

// observe raises the local version; bump messages may arrive out of order.
func (c *Cache) observe(v int64) {
	for {
		cur := c.local.Load()
		if v <= cur || c.local.CompareAndSwap(cur, v) {
			return
		}
	}
}
