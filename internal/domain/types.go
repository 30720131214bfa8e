package domain

import "time"

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a catalog entry. Monetary amounts are minor units in the product currency.
type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Category    string
	Price       int64
	Currency    string
	Images      []string
	Variants    []ProductVariant
	IsActive    bool
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductVariant is one cell of the size/color matrix. Stock is never negative.
type ProductVariant struct {
	SKU   string
	Size  string
	Color string
	Stock int64
}

// Variant returns the variant matching size and color, if present.
func (p Product) Variant(size, color string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.Size == size && v.Color == color {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// Cart holds at most one line per (productID, size, color).
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Lines     []CartLine
	Totals    CartTotals
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine snapshots name and unit price at the time the line was added.
type CartLine struct {
	ProductID string
	Name      string
	Size      string
	Color     string
	UnitPrice int64
	Quantity  int64
	Image     string
}

// LineTotal returns unit price times quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * l.Quantity
}

// CartTotals is the output of the pricing rules applied to a set of lines.
type CartTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Tax      int64
	Total    int64
}

// OrderStatus enumerates the fulfilment states of an order.
type OrderStatus string

const (
	// OrderStatusPlaced is the initial state of every order.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusProcessing means the order is being picked and packed.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped means the parcel was handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered is the terminal success state.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is the terminal cancellation state.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment axis independently of fulfilment.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is immutable in items and amounts once placed; only the status axes,
// history, and timestamps change afterwards.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Currency        string
	Items           []OrderItem
	Totals          CartTotals
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	ShippingAddress Address
	IdempotencyKey  string
	PaymentIntentID string
	StatusHistory   []OrderStatusChange
	Metadata        map[string]string
	PlacedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a priced snapshot of a cart line at submit time.
type OrderItem struct {
	ProductID string
	SKU       string
	Name      string
	Size      string
	Color     string
	UnitPrice int64
	Quantity  int64
	LineTotal int64
}

// OrderStatusChange records one transition in the order's history.
type OrderStatusChange struct {
	From       OrderStatus
	To         OrderStatus
	Actor      string
	Note       string
	OccurredAt time.Time
}

// WishlistItem is a denormalized product snapshot captured at add time.
type WishlistItem struct {
	ProductID string
	Name      string
	Price     int64
	Currency  string
	Image     string
	AddedAt   time.Time
}

// Address is a shipping destination. Validation lives in the services layer.
type Address struct {
	RecipientName string
	Line1         string
	Line2         string
	City          string
	State         string
	PostalCode    string
	Country       string
	Phone         string
}

// OrderEvent is published to the notification topic after order mutations.
type OrderEvent struct {
	Type          string
	OrderID       string
	OrderNumber   string
	UserID        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	OccurredAt    time.Time
	Attributes    map[string]string
}

// Health statuses reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck captures the outcome of a single dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency probe outcomes.
type SystemHealthReport struct {
	Status      string
	GeneratedAt time.Time
	Checks      map[string]SystemHealthCheck
}
