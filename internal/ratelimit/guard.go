// Package ratelimit protects the extraction pipeline from a single user
// flooding the queue. Limits are advisory: when Redis is unavailable the
// guard allows everything rather than blocking ingestion.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision says whether an enqueue may proceed and why not when it can't.
type Decision struct {
	Allowed bool
	Reason  string
}

var allow = Decision{Allowed: true}

// Guard enforces two per-user ceilings on enqueueing: the number of jobs
// in flight (pending or processing) and the number of enqueues in the
// current hour.
type Guard struct {
	client     *redis.Client
	maxPending int
	maxHourly  int
}

func NewGuard(redisURL string, maxPending, maxHourly int) (*Guard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewGuardWithClient(client, maxPending, maxHourly), nil
}

// NewGuardWithClient builds a guard from an existing client, mostly for
// tests.
func NewGuardWithClient(client *redis.Client, maxPending, maxHourly int) *Guard {
	return &Guard{client: client, maxPending: maxPending, maxHourly: maxHourly}
}

func pendingKey(userID string) string {
	return "arbor:pending:" + userID
}

func hourlyKey(userID string, now time.Time) string {
	return "arbor:hourly:" + userID + ":" + now.UTC().Format("2006010215")
}

// Check reports whether userID may enqueue another job. A nil guard or a
// Redis error always allows; the queue's own dedup and the worker pool
// bound the damage.
func (g *Guard) Check(ctx context.Context, userID string) Decision {
	if g == nil {
		return allow
	}

	pending, err := g.client.Get(ctx, pendingKey(userID)).Int()
	if err != nil && err != redis.Nil {
		log.Printf("ratelimit: read pending count for %s: %v", userID, err)
		return allow
	}
	if pending >= g.maxPending {
		return Decision{Reason: fmt.Sprintf("too many jobs in flight (%d)", pending)}
	}

	hourly, err := g.client.Get(ctx, hourlyKey(userID, time.Now())).Int()
	if err != nil && err != redis.Nil {
		log.Printf("ratelimit: read hourly count for %s: %v", userID, err)
		return allow
	}
	if hourly >= g.maxHourly {
		return Decision{Reason: fmt.Sprintf("hourly extraction limit reached (%d)", hourly)}
	}

	return allow
}

// RecordEnqueue bumps both counters after a successful enqueue. The
// pending counter carries a long TTL so an orphaned counter eventually
// clears; the hourly counter expires with its window.
func (g *Guard) RecordEnqueue(ctx context.Context, userID string) {
	if g == nil {
		return
	}

	pk := pendingKey(userID)
	if err := g.client.Incr(ctx, pk).Err(); err != nil {
		log.Printf("ratelimit: bump pending count for %s: %v", userID, err)
	} else {
		g.client.Expire(ctx, pk, 24*time.Hour)
	}

	hk := hourlyKey(userID, time.Now())
	if err := g.client.Incr(ctx, hk).Err(); err != nil {
		log.Printf("ratelimit: bump hourly count for %s: %v", userID, err)
	} else {
		g.client.Expire(ctx, hk, 2*time.Hour)
	}
}

// RecordDone decrements the in-flight counter when a job reaches any
// terminal status.
func (g *Guard) RecordDone(ctx context.Context, userID string) {
	if g == nil {
		return
	}

	pk := pendingKey(userID)
	n, err := g.client.Decr(ctx, pk).Result()
	if err != nil {
		log.Printf("ratelimit: drop pending count for %s: %v", userID, err)
		return
	}
	if n < 0 {
		g.client.Set(ctx, pk, 0, 24*time.Hour)
	}
}

func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	return g.client.Close()
}
