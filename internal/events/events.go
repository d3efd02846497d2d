// Package events publishes scrape-request status changes on Redis pub/sub
// so the Gateway can push them to connected clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobmate/leads-service/internal/model"
)

// ChannelScrapeStatus is the Redis channel carrying status changes.
const ChannelScrapeStatus = "EVENT_SCRAPE_STATUS"

// StatusEvent is the payload published on every successful transition.
type StatusEvent struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
	UserID    string       `json:"userId"`
	From      model.Status `json:"from"`
	To        model.Status `json:"to"`
	Aborted   bool         `json:"aborted,omitempty"`
	At        time.Time    `json:"at"`
}

// Publisher delivers status events. Delivery is best effort.
type Publisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent) error
}

// RedisPublisher publishes on ChannelScrapeStatus.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) PublishStatus(ctx context.Context, ev StatusEvent) error {
	ev.Type = ChannelScrapeStatus
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelScrapeStatus, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ChannelScrapeStatus, err)
	}
	return nil
}

// Nop discards events. Used when Redis is not configured.
type Nop struct{}

func (Nop) PublishStatus(context.Context, StatusEvent) error { return nil }
