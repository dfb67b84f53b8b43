package relay

import (
	"context"
	"fmt"

	"github.com/agora-social/agora-cli/pkg/channel"
	"github.com/agora-social/agora-cli/pkg/logger"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BusTopic is the redis pub/sub channel shared by relay instances.
const BusTopic = "agora:relay:deliver"

// Delivery is one routed frame addressed to a user.
type Delivery struct {
	UserID string              `json:"userId"`
	Event  channel.EventName   `json:"event"`
	Frame  jsoniter.RawMessage `json:"frame"`
}

// Bus fans routed frames out to every relay instance, each of which
// delivers to its own connections.
type Bus interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe calls fn for every published delivery until ctx ends.
	Subscribe(ctx context.Context, fn func(Delivery)) error
	Close() error
}

// RedisBus is a Bus over redis pub/sub.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects to url (redis://[:password@]host:port/db).
func NewRedisBus(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("Relay bus connected", "addr", opts.Addr)
	return &RedisBus{client: client}, nil
}

func (b *RedisBus) Publish(ctx context.Context, d Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, BusTopic, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, fn func(Delivery)) error {
	sub := b.client.Subscribe(ctx, BusTopic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", BusTopic, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				logger.Warn("Dropping malformed bus message", "error", err)
				continue
			}
			fn(d)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
