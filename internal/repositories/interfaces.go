package repositories

import (
	"context"
	"time"

	domain "github.com/forevish/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	OrderIntake() OrderIntakeRepository
	Wishlists() WishlistRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog products and their variant stock matrix.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)

	// AdjustStock applies delta to the (size, color) variant inside a
	// transaction. A result below zero returns a StockError and leaves the
	// document untouched.
	AdjustStock(ctx context.Context, req StockAdjustRequest) (domain.ProductVariant, error)

	// SetStock overwrites the variant's stock with an absolute quantity.
	SetStock(ctx context.Context, req StockSetRequest) (domain.ProductVariant, error)
}

// OrderIntakeRepository runs the transactional boundary shared by stock and
// orders: placement decrements every line and creates the order document
// atomically; cancellation restores the lines and rewrites the order.
type OrderIntakeRepository interface {
	// PlaceOrder reads authoritative stock for every line, decrements it,
	// and creates the order in ONE transaction. Any shortfall aborts the
	// whole transaction with a StockError and no stock changes.
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)

	// CancelRestock restores the order's quantities and persists the
	// cancelled order in one transaction. The order is re-read inside the
	// transaction and the call aborts with a conflict when its stored
	// status no longer matches ExpectedStatus, so concurrent cancels
	// restock at most once.
	CancelRestock(ctx context.Context, req CancelRestockRequest) error
}

// CancelRestockRequest carries the cancelled order snapshot, the lines to
// restore, and the status the caller observed before deciding to cancel.
type CancelRestockRequest struct {
	Order          domain.Order
	Lines          []StockLine
	ExpectedStatus domain.OrderStatus
}

// PlaceOrderRequest carries the order snapshot and the stock lines it consumes.
type PlaceOrderRequest struct {
	Order domain.Order
	Lines []StockLine
	Now   time.Time
}

// PlaceOrderResult reports the stock remaining per line after placement.
type PlaceOrderResult struct {
	Remaining map[string]int64
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	Category   string
	ActiveOnly bool
	Pagination domain.Pagination
}

// StockAdjustRequest identifies one variant and the signed delta to apply.
type StockAdjustRequest struct {
	ProductID string
	Size      string
	Color     string
	Delta     int64
	Now       time.Time
}

// StockSetRequest identifies one variant and the absolute quantity to store.
type StockSetRequest struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int64
	Now       time.Time
}

// StockLine names one variant and a positive quantity.
type StockLine struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int64
}

// CartRepository persists the single active cart per user.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// OrderRepository persists orders and serves cursor-paginated listings.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings. Results are ordered createdAt desc.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// WishlistRepository stores denormalized product snapshots per user.
type WishlistRepository interface {
	List(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WishlistItem], error)
	Put(ctx context.Context, userID string, item domain.WishlistItem) (bool, error)
	Delete(ctx context.Context, userID string, productID string) error
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig bounds and steps a named counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
