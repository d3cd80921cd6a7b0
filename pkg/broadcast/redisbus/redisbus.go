// Package redisbus is a broadcast.Channel over Redis PUBLISH/SUBSCRIBE, for
// execution contexts in different processes.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/broadcast"
	"github.com/redis/go-redis/v9"
)

type Bus struct {
	rdb    *redis.Client
	topic  string
	logger *slog.Logger
}

var _ broadcast.Channel = (*Bus)(nil)

// New returns a Bus on topic. An empty topic means broadcast.DefaultTopic.
func New(rdb *redis.Client, topic string, logger *slog.Logger) *Bus {
	if topic == "" {
		topic = broadcast.DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{rdb: rdb, topic: topic, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, msg broadcast.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisbus: marshal: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.topic, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish: %w", err)
	}
	return nil
}

// Subscribe blocks until Redis confirms the subscription, then delivers
// messages from a background goroutine until cancel is called or ctx ends.
func (b *Bus) Subscribe(ctx context.Context, fn broadcast.Handler) (func(), error) {
	ps := b.rdb.Subscribe(ctx, b.topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisbus: subscribe: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range ps.Channel() {
			var msg broadcast.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("redisbus: dropping malformed message", "topic", b.topic, "err", err)
				continue
			}
			fn(msg)
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = ps.Close() })

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			_ = ps.Close()
			<-done
		})
	}, nil
}
