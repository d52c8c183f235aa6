package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisChannelPrefix = "fulfillment:events:"

// RedisChannel is the pub/sub channel carrying one branch's events.
func RedisChannel(e Event) string {
	return redisChannelPrefix + e.BranchID.String()
}

// RedisPublisher broadcasts events to every server instance.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, RedisChannel(e), body).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// RedisBridge feeds events published by any instance into a local sink,
// usually the websocket hub.
type RedisBridge struct {
	client *redis.Client
	local  Publisher
	log    *zap.SugaredLogger
}

func NewRedisBridge(client *redis.Client, local Publisher, log *zap.SugaredLogger) *RedisBridge {
	return &RedisBridge{client: client, local: local, log: log}
}

// Run blocks until ctx is cancelled or the subscription closes.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.log.Infow("redis bridge subscribed", "pattern", redisChannelPrefix+"*")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warnw("dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			if !strings.HasSuffix(msg.Channel, e.BranchID.String()) {
				b.log.Warnw("event branch does not match channel", "channel", msg.Channel, "branch_id", e.BranchID)
				continue
			}
			if err := b.local.Publish(ctx, e); err != nil {
				b.log.Warnw("local publish failed", "key", e.Key(), "error", err)
			}
		}
	}
}
