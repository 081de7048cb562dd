package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Subscription delivers pub/sub payloads until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Subscribe waits for the subscribe confirmation before returning.
func (c *Client) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if c == nil || c.conn == nil {
		return nil, errNotInitialized
	}
	ps := c.conn.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return relaySubscription(ps), nil
}

type pubsubFeed struct {
	ps  *redis.PubSub
	out chan []byte
}

// relaySubscription copies payloads off the go-redis channel; out closes
// once the subscription does.
func relaySubscription(ps *redis.PubSub) *pubsubFeed {
	f := &pubsubFeed{ps: ps, out: make(chan []byte)}
	go func() {
		defer close(f.out)
		for msg := range ps.Channel() {
			f.out <- []byte(msg.Payload)
		}
	}()
	return f
}

func (f *pubsubFeed) Messages() <-chan []byte { return f.out }

func (f *pubsubFeed) Close() error { return f.ps.Close() }
