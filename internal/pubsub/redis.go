package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Broker = (*Redis)(nil)

// Redis implements Broker over Redis PUBLISH/SUBSCRIBE so the service can run
// more than one process against a shared broker. Payloads cross the wire as
// JSON; subscribers receive json.RawMessage.
type Redis struct {
	client *redis.Client

	mu      sync.Mutex
	pubsubs map[*Subscription]*redis.PubSub
}

func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Redis{client: client, pubsubs: make(map[*Subscription]*redis.PubSub)}, nil
}

func (b *Redis) Publish(topic Topic, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("pubsub: marshal payload", slog.String("topic", topic.String()), slog.Any("err", err))
		return
	}
	if err := b.client.Publish(context.Background(), topic.String(), data).Err(); err != nil {
		slog.Error("pubsub: publish", slog.String("topic", topic.String()), slog.Any("err", err))
	}
}

func (b *Redis) Subscribe(topic Topic) *Subscription {
	ps := b.client.Subscribe(context.Background(), topic.String())
	sub := newSubscription(topic)

	b.mu.Lock()
	b.pubsubs[sub] = ps
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			sub.enqueue(json.RawMessage(msg.Payload))
		}
	}()

	return sub
}

func (b *Redis) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	ps := b.pubsubs[sub]
	delete(b.pubsubs, sub)
	b.mu.Unlock()

	if ps != nil {
		_ = ps.Close()
	}
	sub.close()
}

func (b *Redis) Close() error {
	return b.client.Close()
}
