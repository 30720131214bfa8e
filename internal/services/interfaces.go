package services

import (
	"context"
	"time"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	Cart               = domain.Cart
	CartLine           = domain.CartLine
	CartTotals         = domain.CartTotals
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderStatusChange  = domain.OrderStatusChange
	PaymentStatus      = domain.PaymentStatus
	Address            = domain.Address
	WishlistItem       = domain.WishlistItem
	OrderEvent         = domain.OrderEvent
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService manages products and their variant stock matrix.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeactivateProduct(ctx context.Context, cmd DeactivateProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string, opts ProductReadOptions) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (ProductVariant, error)
	SetStock(ctx context.Context, cmd SetStockCommand) (ProductVariant, error)
}

// CartService manages the per-user cart and its derived totals.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error)
	UpdateLineQuantity(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService runs order intake: validation, idempotent submission, and
// the atomic stock-decrement-plus-persist boundary.
type CheckoutService interface {
	SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (Order, error)
}

// OrderService covers the read side and the lifecycle state machine.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// WishlistService stores denormalized product snapshots per user.
type WishlistService interface {
	List(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WishlistItem], error)
	Add(ctx context.Context, cmd AddWishlistItemCommand) (WishlistItem, error)
	Remove(ctx context.Context, userID string, productID string) error
}

// NotificationDispatcher publishes order events best-effort. Implementations
// make exactly one attempt; callers log failures and never propagate them.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, event OrderEvent) error
}

// CounterService issues sequential values for order numbers.
type CounterService interface {
	Next(ctx context.Context, counterID string) (int64, error)
	Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

// SystemService aggregates diagnostics for internal endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
	Info(ctx context.Context) (SystemInfo, error)
}

// MediaService issues signed upload URLs for product images.
type MediaService interface {
	CreateUploadURL(ctx context.Context, cmd CreateUploadURLCommand) (UploadTarget, error)
}

// PaymentGateway abstracts the PSP used at order placement and cancellation.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	RefundIntent(ctx context.Context, req RefundIntentRequest) error
}

// DomainError carries a stable machine-readable code alongside the message.
type DomainError interface {
	error
	Code() string
}

// Command and filter DTOs ----------------------------------------------------

// VariantInput describes one cell of the size/color matrix on write.
type VariantInput struct {
	SKU   string
	Size  string
	Color string
	Stock int64
}

type CreateProductCommand struct {
	Name        string
	Description string
	Category    string
	Price       int64
	Currency    string
	Images      []string
	Variants    []VariantInput
	Metadata    map[string]any
}

type UpdateProductCommand struct {
	ProductID   string
	Name        *string
	Description *string
	Category    *string
	Price       *int64
	Images      []string
	Variants    []VariantInput
}

type DeactivateProductCommand struct {
	ProductID string
	Actor     string
}

// ProductReadOptions controls visibility of deactivated products.
type ProductReadOptions struct {
	IncludeInactive bool
}

type ProductListFilter struct {
	Category        string
	IncludeInactive bool
	Pagination      Pagination
}

type AdjustStockCommand struct {
	ProductID string
	Size      string
	Color     string
	Delta     int64
	Actor     string
}

type SetStockCommand struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int64
	Actor     string
}

type AddCartLineCommand struct {
	UserID    string
	ProductID string
	Size      string
	Color     string
	Quantity  int64
}

type UpdateCartLineCommand struct {
	UserID    string
	ProductID string
	Size      string
	Color     string
	Quantity  int64
}

type RemoveCartLineCommand struct {
	UserID    string
	ProductID string
	Size      string
	Color     string
}

type SubmitOrderCommand struct {
	UserID          string
	IdempotencyKey  string
	ShippingAddress Address
	Metadata        map[string]string
}

type OrderReadOptions struct {
	// UserID enforces ownership; an order belonging to another user reads
	// as not found. Empty skips the check (admin surfaces).
	UserID string
}

type OrderListFilter = repositories.OrderListFilter

type OrderStatusTransitionCommand struct {
	OrderID string
	Target  OrderStatus
	// ExpectedStatus guards against concurrent transitions when set.
	ExpectedStatus *OrderStatus
	Actor          string
	Note           string
}

type PaymentStatusCommand struct {
	OrderID string
	Target  PaymentStatus
	Actor   string
	Note    string
}

type CancelOrderCommand struct {
	OrderID string
	// UserID enforces ownership for customer-initiated cancellation.
	UserID string
	Actor  string
	Reason string
}

type AddWishlistItemCommand struct {
	UserID    string
	ProductID string
}

type CreateUploadURLCommand struct {
	ProductID   string
	FileName    string
	ContentType string
}

// UploadTarget is a signed PUT URL plus the storage path it writes.
type UploadTarget struct {
	URL       string
	Path      string
	ExpiresAt time.Time
}

type PaymentIntentRequest struct {
	OrderID  string
	Amount   int64
	Currency string
	Metadata map[string]string
}

type RefundIntentRequest struct {
	IntentID string
	Reason   string
	Metadata map[string]string
}

// PaymentIntent identifies the PSP-side intent created for an order.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// SystemInfo reports build and uptime facts for diagnostics.
type SystemInfo struct {
	Environment string
	Version     string
	StartedAt   time.Time
	Uptime      time.Duration
}
