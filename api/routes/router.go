package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopflow-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/shopflow-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/shopflow-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/shopflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/shopflow-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/shopflow-backend/internal/checkout"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	"github.com/angelmondragon/shopflow-backend/internal/payments"
	"github.com/angelmondragon/shopflow-backend/internal/shipping"
	"github.com/angelmondragon/shopflow-backend/pkg/config"
	"github.com/angelmondragon/shopflow-backend/pkg/db"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
	"github.com/angelmondragon/shopflow-backend/pkg/momo"
	"github.com/angelmondragon/shopflow-backend/pkg/pagination"
	"github.com/angelmondragon/shopflow-backend/pkg/redis"
)

// ShippingService quotes fees and prefills the last shipping info.
type ShippingService interface {
	Quote(ctx context.Context, dest shipping.Destination) (shipping.Quote, error)
	LastInfo(ctx context.Context, session string) (*orders.ShippingInfo, error)
}

// OwnerOrders is the shopper-facing order history.
type OwnerOrders interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*orders.ListResult, error)
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*orders.Order, error)
}

// AdminConsole is the admin order surface.
type AdminConsole interface {
	List(ctx context.Context, filter orders.AdminFilter, params pagination.Params) (*orders.ListResult, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	SetFulfillmentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.FulfillmentStatus, reason string) (*orders.Order, bool, error)
	SetPaymentStatus(ctx context.Context, adminID uuid.UUID, id uuid.UUID, next enums.PaymentStatus, reason string) (*orders.Order, bool, error)
	Delete(ctx context.Context, adminID uuid.UUID, id uuid.UUID, confirmed bool) error
}

// PaymentReconciler confirms QR payments from the client, the return page and
// the provider's notification.
type PaymentReconciler interface {
	PendingMarker(ctx context.Context, session string) (*payments.Marker, error)
	CheckPending(ctx context.Context, session string) (*payments.CheckResult, error)
	Poll(ctx context.Context, session string) (*payments.CheckResult, error)
	Reconcile(ctx context.Context, providerTransactionID, source string) (*payments.CheckResult, error)
	ApplyConfirmation(ctx context.Context, providerTransactionID string, conf *payments.Confirmation, source string) (*payments.CheckResult, error)
}

type NotificationVerifier interface {
	VerifyNotification(n momo.Notification) bool
}

type DeliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// Dependencies carries everything the HTTP surface calls into.
type Dependencies struct {
	DB       db.Pinger
	Redis    *redis.Client
	Cart     cartcontrollers.Store
	Shipping ShippingService
	Checkout checkoutsvc.Service
	Orders   OwnerOrders
	Admin    AdminConsole
	Payments PaymentReconciler
	Verifier NotificationVerifier
	Delivery DeliveryGuard
	Metrics  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
		middleware.CartSession(logg),
	)

	apiPolicy := middleware.NewRateLimitPolicy("api", cfg.HTTP.RateLimitWindow, cfg.HTTP.RateLimitPerIP)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.RateLimitWindow, cfg.HTTP.CheckoutPerWindow)
	idempotent := middleware.Idempotency(idempotencyStore(deps.Redis), logg)

	checks := []controllers.ReadinessCheck{}
	if deps.DB != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "database", Target: deps.DB})
	}
	if deps.Redis != nil {
		checks = append(checks, controllers.ReadinessCheck{Name: "redis", Target: deps.Redis})
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, logg, checks...))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/momo", webhookcontrollers.MoMoIPN(deps.Payments, deps.Verifier, deps.Delivery, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(apiPolicy, rateLimitStore(deps.Redis), logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
				r.Delete("/", cartcontrollers.CartClear(deps.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
				r.Patch("/items/{itemId}", cartcontrollers.CartSetQuantity(deps.Cart, logg))
				r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			})
			r.Route("/shipping", func(r chi.Router) {
				r.Post("/quote", controllers.ShippingQuote(deps.Shipping, logg))
				r.Get("/info", controllers.ShippingInfo(deps.Shipping, logg))
			})
			r.Route("/payments", func(r chi.Router) {
				r.Post("/pending/check", controllers.PaymentsCheckPending(deps.Payments, logg))
				r.Get("/return", controllers.PaymentsReturn(deps.Payments, deps.Verifier, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RateLimit(apiPolicy, rateLimitStore(deps.Redis), logg))

			r.With(idempotent).Post("/cart/merge", cartcontrollers.CartMerge(deps.Cart, logg))
			r.With(
				middleware.RateLimit(checkoutPolicy, rateLimitStore(deps.Redis), logg),
				idempotent,
			).Post("/checkout", controllers.Checkout(deps.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
				r.With(idempotent).Post("/{orderId}/payments", controllers.RetryOrderPayment(deps.Checkout, logg))
			})
		})

		r.Route("/admin/orders", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))

			r.Get("/", controllers.AdminOrders(deps.Admin, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(deps.Admin, logg))
			r.Delete("/{orderId}", controllers.AdminDeleteOrder(deps.Admin, logg))
			r.Patch("/{orderId}/fulfillment-status", controllers.AdminSetFulfillmentStatus(deps.Admin, logg))
			r.Patch("/{orderId}/payment-status", controllers.AdminSetPaymentStatus(deps.Admin, logg))
		})
	})

	return r
}

// A nil *redis.Client must reach the middleware as a nil interface so the
// middleware can skip itself.
func idempotencyStore(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}

func rateLimitStore(client *redis.Client) middleware.FixedWindowStore {
	if client == nil {
		return nil
	}
	return client
}
