package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/forevish/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// routeGroup pairs a mount point with its registrar and group middleware.
type routeGroup struct {
	name        string
	path        string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      map[string]*routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// groupOrder fixes the mount order so route registration stays deterministic.
var groupOrder = []string{"public", "me", "cart", "checkout", "orders", "admin", "webhooks", "internal"}

func (cfg *routerConfig) group(name string) *routeGroup {
	if g, ok := cfg.groups[name]; ok {
		return g
	}
	g := &routeGroup{name: name, path: "/" + name}
	cfg.groups[name] = g
	return g
}

// NewRouter constructs the chi router with shared middleware and expected route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		groups: make(map[string]*routeGroup),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, name := range groupOrder {
			mountGroup(api, cfg.group(name))
		}
	})

	return r
}

func mountGroup(api chi.Router, g *routeGroup) {
	api.Route(g.path, func(group chi.Router) {
		for _, mw := range g.middlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if g.registrar != nil {
			g.registrar(group)
			return
		}
		registerNotImplemented(group, g.name)
	})
}

func registrarOption(name string) func(RouteRegistrar) Option {
	return func(reg RouteRegistrar) Option {
		return func(cfg *routerConfig) {
			cfg.group(name).registrar = reg
		}
	}
}

func middlewareOption(name string) func(...func(http.Handler) http.Handler) Option {
	return func(mw ...func(http.Handler) http.Handler) Option {
		return func(cfg *routerConfig) {
			g := cfg.group(name)
			g.middlewares = append(g.middlewares, mw...)
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithPublicRoutes configures the registrar responsible for public catalog endpoints.
var WithPublicRoutes = registrarOption("public")

// WithPublicMiddlewares configures middlewares applied to the /public group.
var WithPublicMiddlewares = middlewareOption("public")

// WithMeRoutes configures the registrar responsible for user scoped endpoints.
var WithMeRoutes = registrarOption("me")

// WithCartRoutes configures the registrar responsible for cart endpoints.
var WithCartRoutes = registrarOption("cart")

// WithCheckoutRoutes configures the registrar responsible for checkout endpoints.
var WithCheckoutRoutes = registrarOption("checkout")

// WithCheckoutMiddlewares configures middlewares applied to the /checkout group.
var WithCheckoutMiddlewares = middlewareOption("checkout")

// WithOrderRoutes configures the registrar responsible for order endpoints.
var WithOrderRoutes = registrarOption("orders")

// WithAdminRoutes configures the registrar responsible for admin endpoints.
var WithAdminRoutes = registrarOption("admin")

// WithWebhookRoutes configures the registrar responsible for webhook endpoints.
var WithWebhookRoutes = registrarOption("webhooks")

// WithWebhookMiddlewares configures middlewares applied to the /webhooks group.
var WithWebhookMiddlewares = middlewareOption("webhooks")

// WithInternalRoutes configures the registrar responsible for internal endpoints.
var WithInternalRoutes = registrarOption("internal")

// WithInternalMiddlewares configures middlewares applied to the /internal group.
var WithInternalMiddlewares = middlewareOption("internal")

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
