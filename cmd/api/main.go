package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/grocerybid-backend/api/routes"
	"github.com/angelmondragon/grocerybid-backend/internal/auth"
	"github.com/angelmondragon/grocerybid-backend/internal/bootstrap"
	"github.com/angelmondragon/grocerybid-backend/internal/ledger"
	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/orders"
	"github.com/angelmondragon/grocerybid-backend/internal/payments"
	"github.com/angelmondragon/grocerybid-backend/internal/quotations"
	"github.com/angelmondragon/grocerybid-backend/internal/realtime"
	"github.com/angelmondragon/grocerybid-backend/internal/users"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/db"
	"github.com/angelmondragon/grocerybid-backend/pkg/db/models"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/metrics"
	"github.com/angelmondragon/grocerybid-backend/pkg/outbox"
	outboxroutes "github.com/angelmondragon/grocerybid-backend/pkg/outbox/registry"
	"github.com/angelmondragon/grocerybid-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rt, err := bootstrap.Start(context.Background(), "api")
	if err != nil {
		bootstrap.Abort("api", err)
	}
	cfg, logg := rt.Config, rt.Logger
	ctx, stop := rt.SignalContext()
	defer stop()

	redisClient, err := rt.Redis(ctx)
	if err != nil {
		rt.Fatal(ctx, "redis unavailable", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := realtime.NewHub(cfg.Realtime.SendBuffer, metrics.NewRealtimeMetrics(promRegistry), logg)
	var publisher realtime.Publisher = hub
	if cfg.FeatureFlags.RealtimeRelay {
		relay := realtime.NewRedisRelay(redisClient, redisClient.ChannelName(cfg.Realtime.RelayChannel), hub, logg)
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logg.Error(ctx, "realtime relay stopped", err)
			}
		}()
	}

	router, err := buildRouter(cfg, logg, rt.DB, redisClient, metrics.NewLedgerMetrics(promRegistry), realtime.NewNotifier(publisher))
	if err != nil {
		rt.Fatal(ctx, "wire services", err)
	}
	router.Realtime = realtime.NewHandler(hub, cfg.JWT, cfg.Realtime)
	router.Metrics = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	server := &http.Server{
		Addr:              listenAddr(cfg.App.Port),
		Handler:           otelhttp.NewHandler(routes.NewRouter(*router), "grocerybid-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx = logg.WithFields(ctx, map[string]any{"addr": server.Addr, "relay": cfg.FeatureFlags.RealtimeRelay})
	if err := serve(ctx, server, logg); err != nil {
		rt.Fatal(ctx, "api server stopped unexpectedly", err)
	}
	rt.Shutdown(ctx)
}

// listenAddr prefers the platform-assigned PORT.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

// serve runs server until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server, logg *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logg.Info(ctx, "api server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logg.Error(ctx, "api server drain incomplete", err)
	}
	return nil
}

func buildRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	ledgerMetrics *metrics.LedgerMetrics,
	notifier *realtime.Notifier,
) (*routes.RouterParams, error) {
	gdb := dbClient.DB()
	eventRoutes, err := outboxroutes.New(cfg.PubSub)
	if err != nil {
		return nil, err
	}
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg,
		outbox.WithRowCheck(func(row models.OutboxEvent) error {
			_, err := eventRoutes.Resolve(row)
			return err
		}),
	)

	walletService, err := wallet.NewService(ledger.NewRepository(gdb), ledgerMetrics)
	if err != nil {
		return nil, err
	}

	usersRepo := users.NewRepository(gdb)
	usersService, err := users.NewService(users.ServiceParams{
		Repo:        usersRepo,
		Tx:          dbClient,
		Wallet:      walletService,
		Outbox:      outboxService,
		Password:    cfg.Password,
		Marketplace: cfg.Marketplace,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  usersRepo,
		Registrar: usersService,
		JWTConfig: cfg.JWT,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, err
	}

	listsRepo := lists.NewRepository(gdb)
	listsService, err := lists.NewService(listsRepo, dbClient, outboxService, notifier, logg)
	if err != nil {
		return nil, err
	}

	quotationsRepo := quotations.NewRepository(gdb)
	quotationsService, err := quotations.NewService(quotations.ServiceParams{
		Repo:          quotationsRepo,
		Lists:         listsRepo,
		Wallet:        walletService,
		Tx:            dbClient,
		Outbox:        outboxService,
		Notifier:      notifier,
		BiddingCharge: cfg.Marketplace.BiddingCharge,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	ordersRepo := orders.NewRepository(gdb)
	settler, err := orders.NewSettler(ordersRepo, walletService, usersRepo, outboxService, cfg.Marketplace)
	if err != nil {
		return nil, err
	}
	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:           ordersRepo,
		Lists:          listsRepo,
		Quotations:     quotationsRepo,
		Tx:             dbClient,
		Outbox:         outboxService,
		Settler:        settler,
		StrictDelivery: cfg.FeatureFlags.StrictDeliveryTransitions,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Gateway:     payments.NewGateway(cfg.Gateway),
		Verifier:    payments.NewVerifier(cfg.Gateway.KeySecret, cfg.Gateway.MockPrefix),
		Orders:      ordersRepo,
		Settler:     settler,
		Wallet:      walletService,
		Tx:          dbClient,
		Outbox:      outboxService,
		MinRecharge: cfg.Marketplace.MinRecharge,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	return &routes.RouterParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Auth:       authService,
		Users:      usersService,
		Lists:      listsService,
		Quotations: quotationsService,
		Orders:     ordersService,
		Payments:   paymentsService,
		Wallet:     walletService,
	}, nil
}
