package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/grocerybid-backend/internal/bootstrap"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox/registry"
	"github.com/angelmondragon/grocerybid-backend/pkg/pubsub"
)

func main() {
	rt, err := bootstrap.Start(context.Background(), "outbox-publisher")
	if err != nil {
		bootstrap.Abort("outbox-publisher", err)
	}
	ctx, stop := rt.SignalContext()
	defer stop()

	routes, err := registry.New(rt.Config.PubSub)
	if err != nil {
		rt.Fatal(ctx, "event routes", err)
	}
	client, err := pubsub.NewClient(ctx, rt.Config.GCP, routes.Topics(), rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "pubsub unavailable", err)
	}
	rt.OnClose("pubsub", client.Close)

	relay, err := NewRelay(RelayParams{
		Outbox: rt.Config.Outbox,
		Logger: rt.Logger,
		DB:     rt.DB,
		Broker: client,
		Events: outbox.NewRepository(rt.DB.DB()),
		Routes: routes,
		Sinks: func(topic string) (topicSink, error) {
			p, err := client.Publisher(topic)
			if err != nil {
				return nil, err
			}
			return pubsubSink{p: p}, nil
		},
	})
	if err != nil {
		rt.Fatal(ctx, "build relay", err)
	}

	ctx = rt.Logger.WithField(ctx, "topics", routes.Topics())
	rt.Logger.Info(ctx, "outbox publisher started")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(ctx, "outbox publisher stopped unexpectedly", err)
	}
	rt.Shutdown(ctx)
}
