package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/forevish/api/internal/platform/config"
	"github.com/forevish/api/internal/platform/observability"
	"github.com/forevish/api/internal/platform/requestctx"
	"github.com/forevish/api/internal/platform/storage"
	"github.com/forevish/api/internal/repositories"
	"github.com/forevish/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog       services.CatalogService
	Cart          services.CartService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	Wishlist      services.WishlistService
	Counters      services.CounterService
	Media         services.MediaService
	System        services.SystemService
	Notifications services.NotificationDispatcher
}

// Deps carries the externally constructed dependencies the container wires together.
// The registry is mandatory; gateway, publisher, and storage degrade gracefully
// when absent so local development can run without the corresponding backends.
type Deps struct {
	Registry  repositories.Registry
	Gateway   services.PaymentGateway
	Publisher services.OrderEventPublisher
	Storage   *storage.Client
	Logger    *zap.Logger
	Clock     func() time.Time
	Build     services.BuildInfo
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	reg := deps.Registry
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logFn := serviceLogger(deps.Logger)

	if deps.Publisher != nil && cfg.Features.EnableNotifications {
		dispatcher, err := services.NewNotificationDispatcher(services.NotificationDispatcherDeps{
			Publisher: deps.Publisher,
			Clock:     clock,
			Logger:    logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification dispatcher: %w", err)
		}
		svc.Notifications = dispatcher
	}

	if countersRepo := reg.Counters(); countersRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: countersRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	productsRepo := reg.Products()
	if productsRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products: productsRepo,
			Clock:    clock,
			Logger:   logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if cartsRepo := reg.Carts(); cartsRepo != nil && productsRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Carts:    cartsRepo,
			Products: productsRepo,
			Clock:    clock,
			Logger:   logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	ordersRepo := reg.Orders()
	intakeRepo := reg.OrderIntake()
	if ordersRepo != nil && intakeRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:        ordersRepo,
			Intake:        intakeRepo,
			Gateway:       deps.Gateway,
			Notifications: svc.Notifications,
			Clock:         clock,
			Logger:        logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc

		if svc.Cart != nil && reg.Counters() != nil {
			checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
				Carts:         reg.Carts(),
				Orders:        ordersRepo,
				Intake:        intakeRepo,
				Counters:      reg.Counters(),
				Gateway:       deps.Gateway,
				Notifications: svc.Notifications,
				Clock:         clock,
				Logger:        logFn,
			})
			if err != nil {
				return Services{}, fmt.Errorf("build checkout service: %w", err)
			}
			svc.Checkout = checkoutSvc
		}
	}

	if wishlistsRepo := reg.Wishlists(); wishlistsRepo != nil && productsRepo != nil && cfg.Features.EnableWishlist {
		wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
			Wishlists: wishlistsRepo,
			Products:  productsRepo,
			Clock:     clock,
			Logger:    logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wishlist service: %w", err)
		}
		svc.Wishlist = wishlistSvc
	}

	if deps.Storage != nil && cfg.Storage.MediaBucket != "" {
		mediaSvc, err := services.NewMediaService(services.MediaServiceDeps{
			Storage:   deps.Storage,
			Bucket:    cfg.Storage.MediaBucket,
			MaxSize:   cfg.Storage.MaxUploadSize,
			ExpiresIn: cfg.Storage.UploadURLExpiry,
			Logger:    logFn,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build media service: %w", err)
		}
		svc.Media = mediaSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		build := deps.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// serviceLogger adapts the zap logger to the map-based logging contract used by services.
func serviceLogger(base *zap.Logger) func(ctx context.Context, msg string, fields map[string]any) {
	if base == nil {
		return func(context.Context, string, map[string]any) {}
	}
	return func(ctx context.Context, msg string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		if logger == requestctx.NoopLogger() {
			logger = base
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(msg, zapFields...)
	}
}
