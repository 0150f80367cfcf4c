package main

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/security"
	"github.com/noah-isme/toko-storefront/internal/session"
)

type routerDeps struct {
	Config          *config.Config
	Logger          zerolog.Logger
	HTTPMetrics     *obs.HTTPMetrics
	Tracing         bool
	Cart            *cart.Handler
	Catalog         *catalog.Handler
	Checkout        *checkout.Handler
	Health          health.Handler
	CartLimiter     ratelimit.Limiter
	CheckoutLimiter ratelimit.Limiter
}

func newRouter(d routerDeps) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if d.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", session.DefaultHeader},
		ExposedHeaders:   []string{"X-Total-Count", session.DefaultHeader, "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: !cfg.IsDevelopment()}.Middleware)

	if d.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.EnablePprof {
		r.Mount("/debug", protectPprof(middleware.Profiler(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(session.Resolver{CookieSecure: cfg.SessionCookieSecure}.Middleware)
		v.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		d.Catalog.Routes(v)

		v.Group(func(g chi.Router) {
			g.Use(ratelimit.Handler{
				Limiter: d.CartLimiter,
				Config:  ratelimit.Config{Key: ratelimit.BySession("cart"), Window: time.Minute, Max: cfg.RateLimitPerMinute},
				Logger:  d.Logger,
			}.Middleware)
			d.Cart.Routes(g)
		})

		v.Group(func(g chi.Router) {
			g.Use(ratelimit.Handler{
				Limiter: d.CheckoutLimiter,
				Config:  ratelimit.Config{Key: ratelimit.BySession("checkout"), Window: time.Minute, Max: checkoutLimit(cfg.RateLimitPerMinute)},
				Logger:  d.Logger,
			}.Middleware)
			d.Checkout.Routes(g)
		})
	})
	return r
}

func checkoutLimit(perMinute int) int {
	return max(perMinute/12, 1)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
