package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/grocerybid-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/grocerybid-backend/api/controllers/auth"
	ordercontrollers "github.com/angelmondragon/grocerybid-backend/api/controllers/orders"
	"github.com/angelmondragon/grocerybid-backend/api/middleware"
	"github.com/angelmondragon/grocerybid-backend/internal/auth"
	"github.com/angelmondragon/grocerybid-backend/internal/lists"
	"github.com/angelmondragon/grocerybid-backend/internal/orders"
	"github.com/angelmondragon/grocerybid-backend/internal/payments"
	"github.com/angelmondragon/grocerybid-backend/internal/quotations"
	"github.com/angelmondragon/grocerybid-backend/internal/users"
	"github.com/angelmondragon/grocerybid-backend/internal/wallet"
	"github.com/angelmondragon/grocerybid-backend/pkg/config"
	"github.com/angelmondragon/grocerybid-backend/pkg/enums"
	"github.com/angelmondragon/grocerybid-backend/pkg/logger"
	"github.com/angelmondragon/grocerybid-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to.
type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis *redis.Client

	Auth       auth.Service
	Users      users.Service
	Lists      lists.Service
	Quotations quotations.Service
	Orders     orders.Service
	Payments   payments.Service
	Wallet     wallet.Service

	// Realtime serves the websocket upgrade; nil leaves /ws unmounted.
	Realtime http.Handler
	// Metrics serves the Prometheus scrape endpoint; nil leaves /metrics unmounted.
	Metrics http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		cfg.RateLimit.RegisterEmailLimit,
	)

	// a nil *redis.Client must stay a nil interface so the middleware skips it
	var idempotencyStore redis.IdempotencyStore
	var counterStore middleware.CounterStore
	deps := map[string]controllers.Pinger{}
	if p.DB != nil {
		deps["db"] = p.DB
	}
	if p.Redis != nil {
		idempotencyStore = p.Redis
		counterStore = p.Redis
		deps["redis"] = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}
	if p.Realtime != nil {
		r.Handle("/ws", p.Realtime)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(limiter.Middleware(logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, counterStore, logg)).Post("/login", authcontrollers.AuthLogin(p.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, counterStore, logg)).Post("/register", authcontrollers.AuthRegister(p.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(limiter.Middleware(logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Route("/lists", func(r chi.Router) {
				r.Get("/", controllers.ListIndex(p.Lists, logg))
				r.Get("/{listId}", controllers.ListGet(p.Lists, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.UserRoleBuyer))
					r.Post("/", controllers.ListCreate(p.Lists, logg))
					r.Post("/{listId}/items", controllers.ListAddItem(p.Lists, logg))
					r.Delete("/{listId}", controllers.ListDelete(p.Lists, logg))
				})
			})

			r.Route("/quotations", func(r chi.Router) {
				r.Get("/", controllers.QuotationIndex(p.Quotations, logg))
				r.Get("/{quotationId}", controllers.QuotationGet(p.Quotations, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleVendor)).Post("/", controllers.QuotationSubmit(p.Quotations, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleBuyer)).Put("/{quotationId}/reject", controllers.QuotationReject(p.Quotations, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleBuyer)).Post("/", ordercontrollers.Accept(p.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleBuyer)).Put("/{orderId}/pay", ordercontrollers.MarkPaid(p.Orders, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleVendor)).Put("/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
			})

			r.Route("/payment", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleBuyer))
				r.Post("/create-order", controllers.PaymentCreateOrder(p.Payments, logg))
				r.Post("/verify", controllers.PaymentVerify(p.Payments, logg))
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.WalletHistory(p.Wallet, logg))
				r.Post("/recharge", controllers.WalletRecharge(p.Payments, logg))
				r.Post("/verify", controllers.WalletVerify(p.Payments, logg))
				r.With(middleware.RequireRole(logg, enums.UserRoleAdmin)).Get("/all", controllers.WalletAll(p.Wallet, logg))
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", controllers.UserMe(p.Users, logg))
				r.Get("/referrals", controllers.UserReferrals(p.Users, logg))
				r.Post("/referrals/convert", controllers.UserConvertRewards(p.Users, logg))
			})
		})
	})

	return r
}
