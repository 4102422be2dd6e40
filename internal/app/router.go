package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/checkout"
	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/health"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/order"
	"github.com/noah-isme/backend-pos/internal/ratelimit"
	"github.com/noah-isme/backend-pos/internal/security"
	"github.com/noah-isme/backend-pos/internal/syncer"
	"github.com/noah-isme/backend-pos/internal/taxrate"
)

// RouterOptions toggles the ambient middleware.
type RouterOptions struct {
	Metrics         *obs.HTTPMetrics
	Tracing         bool
	ExposeMetrics   bool
	AllowedOrigins  []string
	MaxBodyBytes    int64
	SecurityHeaders bool
	Probes          []health.Probe
}

// NewRouter mounts every POS endpoint on a chi router.
func NewRouter(svc *Services, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: opts.SecurityHeaders}.Middleware)
	r.Use(security.BodyLimit{Max: opts.MaxBodyBytes}.Middleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: svc.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(opts.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", obs.CashierHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:         300,
	}))

	if opts.ExposeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{Probes: opts.Probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	taxHandler := &taxrate.Handler{Svc: svc.TaxRates, Pricer: svc.Pricer, Validate: svc.Validator}
	couponHandler := &coupon.Handler{Svc: svc.Coupons, Store: svc.CouponStore, Validate: svc.Validator}
	cartHandler := &cart.Handler{Svc: svc.Carts, Validate: svc.Validator}
	checkoutHandler := &checkout.Handler{Svc: svc.Checkout, Validate: svc.Validator}
	orderHandler := &order.Handler{Store: svc.Orders}
	syncHandler := &syncer.Handler{Syncer: svc.Syncer}

	couponLimit := ratelimit.Handler{
		Limiter: svc.CouponLimiter,
		Key:     ratelimit.ByClientIP,
		OnError: func(err error) {
			svc.Logger.Warn().Err(err).Msg("coupon rate limiter unavailable")
		},
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/woocommerce-tax-rate", taxHandler.Rate)
		api.Post("/tax-rate/refresh", taxHandler.Refresh)
		api.Post("/calculate-tax", taxHandler.Calculate)

		api.With(couponLimit.Middleware).Get("/coupons/{code}", couponHandler.Get)
		api.Post("/coupons", couponHandler.Create)

		api.Route("/carts", func(c chi.Router) {
			c.Post("/", cartHandler.Create)
			c.Get("/{id}", cartHandler.Get)
			c.Delete("/{id}", cartHandler.Clear)
			c.Post("/{id}/items", cartHandler.AddItem)
			c.Patch("/{id}/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/{id}/items/{productId}", cartHandler.RemoveItem)
			c.Post("/{id}/coupon", cartHandler.ApplyCoupon)
			c.Delete("/{id}/coupon", cartHandler.RemoveCoupon)
		})

		api.With(svc.Idem.Middleware).Post("/checkout", checkoutHandler.Create)

		api.Get("/orders", orderHandler.List)
		api.Get("/orders/search/{number}", orderHandler.Search)

		api.Post("/sync/woocommerce", syncHandler.Trigger)
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
