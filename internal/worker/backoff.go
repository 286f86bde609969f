package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpulse/internal/pkg/logger"
)

// GroupBackoff tracks per-tenant-group rate-limit backoff. Backed by Redis so
// concurrent pipeline processes see each other's backoff; without Redis it
// degrades to process-local state, which is still correct for a single
// process because each group runs on exactly one worker.
type GroupBackoff struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
}

// NewGroupBackoff creates a backoff tracker. client may be nil.
func NewGroupBackoff(client *redis.Client) *GroupBackoff {
	return &GroupBackoff{client: client, local: map[string]time.Time{}}
}

func backoffKey(group string) string {
	return fmt.Sprintf("adpulse:backoff:group:%s", group)
}

// Set records that the group is rate limited for the given duration.
func (b *GroupBackoff) Set(ctx context.Context, group string, d time.Duration) {
	until := time.Now().Add(d)

	b.mu.Lock()
	b.local[group] = until
	b.mu.Unlock()

	if b.client != nil {
		if err := b.client.SetNX(ctx, backoffKey(group), until.Unix(), d).Err(); err != nil {
			logger.Warn("group backoff redis write failed", "group", group, "error", err.Error())
		}
	}
	logger.Warn("tenant group backing off", "group", group, "seconds", int(d.Seconds()))
}

// Remaining returns how long the group still has to sit out, zero when clear.
func (b *GroupBackoff) Remaining(ctx context.Context, group string) time.Duration {
	if b.client != nil {
		ttl, err := b.client.TTL(ctx, backoffKey(group)).Result()
		if err == nil && ttl > 0 {
			return ttl
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if until, ok := b.local[group]; ok {
		if d := time.Until(until); d > 0 {
			return d
		}
		delete(b.local, group)
	}
	return 0
}

// Wait blocks until the group's backoff expires or the context ends.
func (b *GroupBackoff) Wait(ctx context.Context, group string) error {
	for {
		d := b.Remaining(ctx, group)
		if d <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}
