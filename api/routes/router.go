package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/storefront-backend/api/controllers/returns"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type redisStore interface {
	pkgredis.ClaimStore
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type requestObserver interface {
	Observe(method, route string, status int, elapsed time.Duration)
}

// RouterParams carries everything the HTTP surface is built from.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Redis    redisStore
	Metrics  requestObserver
	Gatherer prometheus.Gatherer
	Tracer   trace.TracerProvider

	Cart     cartcontrollers.Service
	Checkout checkout.Service
	Orders   ordercontrollers.Service
	Returns  returncontrollers.Service

	StripeClient  signingSecretSource
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookGuard  webhookGuard
}

type signingSecretSource interface {
	SigningSecret() string
	LiveMode() bool
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Tracing(p.Tracer),
		middleware.Logging(logg),
		middleware.Metrics(p.Metrics),
		middleware.CORS(cfg.App.URL, cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Pingers, logg))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, p.WebhookGuard, logg))
	})

	policy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.IPLimit, cfg.RateLimit.UserLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(policy, p.Redis, logg))

		replay := middleware.Replay(p.Redis, middleware.ReplayTTL, logg)
		critical := middleware.Replay(p.Redis, middleware.CriticalReplayTTL, logg)

		r.Get("/orders/{orderId}", ordercontrollers.Detail(p.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleUser))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Get(p.Cart, logg))
				r.With(replay).Post("/items", cartcontrollers.AddItem(p.Cart, logg))
				r.With(replay).Patch("/items/{cartItemId}", cartcontrollers.ChangeQuantity(p.Cart, logg))
				r.With(replay).Delete("/items/{cartItemId}", cartcontrollers.RemoveItem(p.Cart, logg))
			})

			r.With(critical).Post("/checkout", controllers.Checkout(p.Checkout, logg))

			r.Get("/orders", ordercontrollers.List(p.Orders, logg))
			r.With(critical).Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.With(critical).Post("/orders/{orderId}/returns", returncontrollers.Request(p.Returns, logg))
		})

		r.Route("/seller/stores/{storeId}", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSeller))
			r.Get("/orders", ordercontrollers.ListForStore(p.Orders, logg))
			r.With(replay).Post("/order-items/{orderItemId}/ready", ordercontrollers.MarkItemReady(p.Orders, logg))
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Get("/", ordercontrollers.ListAll(p.Orders, logg))
			r.With(replay).Post("/{orderId}/status", ordercontrollers.AdvanceStatus(p.Orders, logg))
			r.Get("/{orderId}/returns", returncontrollers.Latest(p.Returns, logg))
			r.With(critical).Post("/{orderId}/returns/{returnRequestId}/accept", returncontrollers.Accept(p.Returns, logg))
			r.With(replay).Post("/{orderId}/returns/{returnRequestId}/decline", returncontrollers.Decline(p.Returns, logg))
		})
	})

	return r
}
