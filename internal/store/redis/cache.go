// Package redis caches computed dashboards in Redis and fans refresh events
// out to other server instances over pub/sub. Every call goes through a
// CircuitBreaker so a Redis outage degrades to direct computation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"quant-dashboard/internal/model"
)

const (
	refreshChannel = "dash:refreshed"
	scanBatch      = 200
)

// Config configures the cache connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures int           // breaker threshold, default 5
	Cooldown    time.Duration // breaker cool-down, default 10s
}

// Cache implements model.DashboardCache.
type Cache struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

var _ model.DashboardCache = (*Cache)(nil)

// New connects and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg.MaxFailures, cfg.Cooldown), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, maxFailures int, cooldown time.Duration) *Cache {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	cb := NewCircuitBreaker(maxFailures, cooldown)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return &Cache{client: client, cb: cb}
}

func isMiss(err error) bool { return errors.Is(err, goredis.Nil) }

// Get returns the cached payload, or nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := c.cb.Execute(func() error {
		var err error
		data, err = c.client.Get(ctx, key).Bytes()
		return err
	}, isMiss)
	if isMiss(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set stores data under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	err := c.cb.Execute(func() error {
		return c.client.Set(ctx, key, data, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes every dashboard cached for symbol.
func (c *Cache) Invalidate(ctx context.Context, symbol string) error {
	deleted := 0
	err := c.cb.Execute(func() error {
		iter := c.client.Scan(ctx, 0, model.DashboardPattern(symbol), scanBatch).Iterator()
		keys := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
			if len(keys) == scanBatch {
				if err := c.client.Del(ctx, keys...).Err(); err != nil {
					return err
				}
				deleted += len(keys)
				keys = keys[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			deleted += len(keys)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate %s: %w", symbol, err)
	}
	if deleted > 0 {
		log.Printf("[redis] invalidated %d dashboards for %s", deleted, symbol)
	}
	return nil
}

// RefreshEvent announces that a symbol's bars changed on some instance.
type RefreshEvent struct {
	Symbol string `json:"symbol"`
	Origin string `json:"origin"`
	At     int64  `json:"at"`
}

// PublishRefresh announces a refresh of symbol to other instances.
func (c *Cache) PublishRefresh(ctx context.Context, origin, symbol string) error {
	msg, err := json.Marshal(RefreshEvent{Symbol: symbol, Origin: origin, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return c.cb.Execute(func() error {
		return c.client.Publish(ctx, refreshChannel, msg).Err()
	})
}

// SubscribeRefresh calls fn for every refresh published by an instance other
// than origin. Blocks until ctx is cancelled.
func (c *Cache) SubscribeRefresh(ctx context.Context, origin string, fn func(symbol string)) error {
	sub := c.client.Subscribe(ctx, refreshChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	log.Printf("[redis] subscribed to %s", refreshChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev RefreshEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Printf("[redis] bad refresh event: %v", err)
				continue
			}
			if ev.Origin == origin || ev.Symbol == "" {
				continue
			}
			fn(ev.Symbol)
		}
	}
}

// OnBreakerChange registers fn to run after every breaker transition, in
// addition to the default log line. fn runs with the breaker lock held.
func (c *Cache) OnBreakerChange(fn func(from, to State)) {
	c.cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		fn(from, to)
	}
}

// BreakerState exposes the breaker state for health reporting.
func (c *Cache) BreakerState() State { return c.cb.CurrentState() }

// Ping checks connectivity, bypassing the breaker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
