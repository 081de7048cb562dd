package realtime

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/redis"
)

type pubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (redis.Subscription, error)
}

// RedisRelay publishes envelopes to a redis channel and replays every
// message it receives into the local hub, so all replicas deliver.
type RedisRelay struct {
	client  pubSub
	channel string
	hub     *Hub
	logg    *logger.Logger
}

// NewRedisRelay builds a relay on channel.
func NewRedisRelay(client pubSub, channel string, hub *Hub, logg *logger.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, logg: logg}
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload)
}

// Run subscribes and feeds the hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub, err := r.client.Subscribe(ctx, r.channel)
	if err != nil {
		return err
	}
	defer sub.Close()

	messages := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-messages:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				if r.logg != nil {
					r.logg.Warn(r.logg.WithError(ctx, err), "dropping malformed realtime message")
				}
				continue
			}
			if err := r.hub.Publish(ctx, env); err != nil && r.logg != nil {
				r.logg.Warn(r.logg.WithError(ctx, err), "realtime delivery failed")
			}
		}
	}
}
