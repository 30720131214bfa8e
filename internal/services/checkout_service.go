package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/platform/textutil"
	"github.com/forevish/api/internal/repositories"
)

var (
	errCheckoutCartsRequired    = errors.New("checkout service: carts repository is required")
	errCheckoutOrdersRequired   = errors.New("checkout service: orders repository is required")
	errCheckoutIntakeRequired   = errors.New("checkout service: intake repository is required")
	errCheckoutCountersRequired = errors.New("checkout service: counters repository is required")
	errCheckoutClockRequired    = errors.New("checkout service: clock is required")
)

// ErrCheckoutInvalidInput indicates user-correctable input problems.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates the cart has no lines to submit.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutInsufficientStock indicates at least one line exceeds available stock.
var ErrCheckoutInsufficientStock = errors.New("checkout service: insufficient stock")

// ErrCheckoutUnavailable indicates the backend could not fulfil the request.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrOrderCreationFailed indicates retries were exhausted on transient contention.
var ErrOrderCreationFailed = errors.New("checkout service: order creation failed")

const (
	orderIDPrefix        = "ord_"
	orderNumberFormat    = "FV-%04d-%06d"
	ordersCounterID      = "orders"
	defaultPlaceAttempts = 3
)

// CheckoutServiceDeps wires the order intake pipeline.
type CheckoutServiceDeps struct {
	Carts         repositories.CartRepository
	Orders        repositories.OrderRepository
	Intake        repositories.OrderIntakeRepository
	Counters      repositories.CounterRepository
	Gateway       PaymentGateway
	Notifications NotificationDispatcher
	Pricing       domain.PricingRules
	Clock         func() time.Time
	IDGenerator   func() string
	PlaceAttempts int
	Logger        func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts         repositories.CartRepository
	orders        repositories.OrderRepository
	intake        repositories.OrderIntakeRepository
	counters      repositories.CounterRepository
	gateway       PaymentGateway
	notifications NotificationDispatcher
	pricing       domain.PricingRules
	now           func() time.Time
	newID         func() string
	attempts      int
	logger        func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Orders == nil {
		return nil, errCheckoutOrdersRequired
	}
	if deps.Intake == nil {
		return nil, errCheckoutIntakeRequired
	}
	if deps.Counters == nil {
		return nil, errCheckoutCountersRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	pricing := deps.Pricing
	if pricing.TaxRatePercent == 0 && len(pricing.ShippingTiers) == 0 {
		pricing = domain.DefaultPricingRules()
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	attempts := deps.PlaceAttempts
	if attempts <= 0 {
		attempts = defaultPlaceAttempts
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:         deps.Carts,
		orders:        deps.Orders,
		intake:        deps.Intake,
		counters:      deps.Counters,
		gateway:       deps.Gateway,
		notifications: deps.Notifications,
		pricing:       pricing,
		now:           func() time.Time { return deps.Clock().UTC() },
		newID:         idGen,
		attempts:      attempts,
		logger:        logger,
	}, nil
}

// SubmitOrder turns the user's cart into a placed order. Stock is re-read
// authoritatively and decremented in the same transaction that persists the
// order, so concurrent submissions for the last unit resolve to exactly one
// success. Resubmitting with the same idempotency key returns the original
// order without touching stock again.
func (s *checkoutService) SubmitOrder(ctx context.Context, cmd SubmitOrderCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		return Order{}, fmt.Errorf("%w: idempotency key is required", ErrCheckoutInvalidInput)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}

	if existing, err := s.orders.FindByIdempotencyKey(ctx, uid, key); err == nil {
		s.logger(ctx, "checkout.idempotent_replay", map[string]any{
			"userId":  uid,
			"orderId": existing.ID,
		})
		return existing, nil
	} else if translated := s.classifyLookupError(err); translated != nil {
		return Order{}, translated
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, ErrCheckoutEmptyCart
		}
		return Order{}, ErrCheckoutUnavailable
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrCheckoutEmptyCart
	}

	now := s.now()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		Number:          number,
		UserID:          uid,
		Currency:        cart.Currency,
		Items:           buildOrderItems(cart.Lines),
		Totals:          domain.ComputeTotals(cart.Lines, s.pricing),
		Status:          domain.OrderStatusPlaced,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		ShippingAddress: trimAddress(cmd.ShippingAddress),
		IdempotencyKey:  key,
		Metadata:        textutil.NormalizeStringMap(cmd.Metadata),
		StatusHistory: []domain.OrderStatusChange{{
			To:         domain.OrderStatusPlaced,
			Actor:      uid,
			OccurredAt: now,
		}},
		PlacedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.placeWithRetry(ctx, order, stockLinesFromCart(cart.Lines)); err != nil {
		return Order{}, err
	}

	s.logger(ctx, "checkout.order_placed", map[string]any{
		"userId":  uid,
		"orderId": order.ID,
		"number":  order.Number,
		"total":   order.Totals.Total,
	})

	order = s.attachPaymentIntent(ctx, order)
	s.clearCartAfterPlacement(ctx, uid, order.ID)
	s.dispatchEvent(ctx, "order.placed", order)

	return order, nil
}

// placeWithRetry retries only transient unavailability. Stock shortfalls and
// validation failures surface immediately.
func (s *checkoutService) placeWithRetry(ctx context.Context, order domain.Order, lines []repositories.StockLine) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		_, err := s.intake.PlaceOrder(ctx, repositories.PlaceOrderRequest{
			Order: order,
			Lines: lines,
			Now:   order.PlacedAt,
		})
		if err == nil {
			return nil
		}

		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			switch stockErr.Code {
			case repositories.StockErrorInsufficient:
				return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, stockErr.Message)
			case repositories.StockErrorVariantNotFound, repositories.StockErrorProductNotFound:
				return fmt.Errorf("%w: %s", ErrCheckoutInvalidInput, stockErr.Message)
			}
		}

		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			if repoErr.IsConflict() {
				// Lost an idempotency race: the order document already exists.
				if existing, lookupErr := s.orders.FindByIdempotencyKey(ctx, order.UserID, order.IdempotencyKey); lookupErr == nil && existing.ID != "" {
					return nil
				}
				return ErrOrderCreationFailed
			}
			if !repoErr.IsUnavailable() {
				return ErrCheckoutUnavailable
			}
		}

		lastErr = err
		s.logger(ctx, "checkout.place_retry", map[string]any{
			"orderId": order.ID,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	s.logger(ctx, "checkout.place_exhausted", map[string]any{
		"orderId": order.ID,
		"error":   fmt.Sprint(lastErr),
	})
	return ErrOrderCreationFailed
}

func (s *checkoutService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, ordersCounterID, 1)
	if err != nil {
		return "", ErrCheckoutUnavailable
	}
	return fmt.Sprintf(orderNumberFormat, now.Year(), seq), nil
}

// attachPaymentIntent is best-effort: the order stands unpaid when the
// gateway call fails and payment can be retried later.
func (s *checkoutService) attachPaymentIntent(ctx context.Context, order domain.Order) domain.Order {
	if s.gateway == nil {
		return order
	}
	intent, err := s.gateway.CreateIntent(ctx, PaymentIntentRequest{
		OrderID:  order.ID,
		Amount:   order.Totals.Total,
		Currency: order.Currency,
		Metadata: map[string]string{"orderNumber": order.Number},
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_intent_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return order
	}

	order.PaymentIntentID = intent.ID
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "checkout.payment_intent_persist_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	return order
}

func (s *checkoutService) clearCartAfterPlacement(ctx context.Context, userID, orderID string) {
	if err := s.carts.DeleteCart(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userId":  userID,
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

// dispatchEvent makes exactly one attempt; a failure is logged and never
// unwinds the order.
func (s *checkoutService) dispatchEvent(ctx context.Context, eventType string, order domain.Order) {
	if s.notifications == nil {
		return
	}
	event := domain.OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		OccurredAt:    s.now(),
	}
	if err := s.notifications.Dispatch(ctx, event); err != nil {
		s.logger(ctx, "checkout.notification_failed", map[string]any{
			"orderId": order.ID,
			"event":   eventType,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) classifyLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return nil
		}
		if repoErr.IsUnavailable() {
			return ErrCheckoutUnavailable
		}
	}
	if err != nil {
		return ErrCheckoutUnavailable
	}
	return nil
}

func validateShippingAddress(addr Address) error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(addr.RecipientName) == "" {
		missing = append(missing, "recipientName")
	}
	if strings.TrimSpace(addr.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, "postalCode")
	}
	if strings.TrimSpace(addr.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: shipping address missing %s", ErrCheckoutInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

func trimAddress(addr Address) Address {
	return Address{
		RecipientName: strings.TrimSpace(addr.RecipientName),
		Line1:         strings.TrimSpace(addr.Line1),
		Line2:         strings.TrimSpace(addr.Line2),
		City:          strings.TrimSpace(addr.City),
		State:         strings.TrimSpace(addr.State),
		PostalCode:    strings.TrimSpace(addr.PostalCode),
		Country:       strings.TrimSpace(addr.Country),
		Phone:         strings.TrimSpace(addr.Phone),
	}
}

func buildOrderItems(lines []domain.CartLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Size:      line.Size,
			Color:     line.Color,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	return items
}

// stockLinesFromCart aggregates quantities per variant so the intake
// transaction sees one line per (productID, size, color).
func stockLinesFromCart(lines []domain.CartLine) []repositories.StockLine {
	merged := make(map[string]*repositories.StockLine, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		key := line.ProductID + "|" + line.Size + "|" + line.Color
		if existing, ok := merged[key]; ok {
			existing.Quantity += line.Quantity
			continue
		}
		merged[key] = &repositories.StockLine{
			ProductID: line.ProductID,
			Size:      line.Size,
			Color:     line.Color,
			Quantity:  line.Quantity,
		}
		order = append(order, key)
	}

	out := make([]repositories.StockLine, 0, len(merged))
	for _, key := range order {
		out = append(out, *merged[key])
	}
	return out
}
