package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/repositories"
)

func checkoutAddress() Address {
	return Address{
		RecipientName: "Asha Verma",
		Line1:         "12 MG Road",
		City:          "Pune",
		PostalCode:    "411001",
		Country:       "IN",
	}
}

func checkoutCart(userID string) domain.Cart {
	return domain.Cart{
		ID:       userID,
		UserID:   userID,
		Currency: "INR",
		Lines: []domain.CartLine{
			{ProductID: "prd-1", Name: "Floral Kurti", Size: "M", Color: "Red", UnitPrice: 500, Quantity: 2},
			{ProductID: "prd-2", Name: "Silk Scarf", Size: "One", Color: "Blue", UnitPrice: 250, Quantity: 1},
		},
	}
}

func TestCheckoutServiceSubmitOrderHappyPath(t *testing.T) {
	now := time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)

	var placed repositories.PlaceOrderRequest
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			placed = req
			return repositories.PlaceOrderResult{}, nil
		},
	}

	var updatedOrder domain.Order
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
		updateFunc: func(ctx context.Context, order domain.Order) error {
			updatedOrder = order
			return nil
		},
	}

	cartDeleted := false
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
		deleteFunc: func(ctx context.Context, userID string) error {
			cartDeleted = true
			return nil
		},
	}

	counters := &stubCounterRepository{
		nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			return 42, nil
		},
	}

	var intentReq PaymentIntentRequest
	gateway := &stubPaymentGateway{
		createFunc: func(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
			intentReq = req
			return PaymentIntent{ID: "pi_123", ClientSecret: "secret"}, nil
		},
	}

	var dispatched []domain.OrderEvent
	dispatcher := &stubNotificationDispatcher{
		dispatchFunc: func(ctx context.Context, event domain.OrderEvent) error {
			dispatched = append(dispatched, event)
			return nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:         carts,
		Orders:        orders,
		Intake:        intake,
		Counters:      counters,
		Gateway:       gateway,
		Notifications: dispatcher,
		Clock:         func() time.Time { return now },
		IDGenerator:   func() string { return "01TEST" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.ID != "ord_01TEST" {
		t.Fatalf("expected order id ord_01TEST, got %q", order.ID)
	}
	if order.Number != "FV-2025-000042" {
		t.Fatalf("expected order number FV-2025-000042, got %q", order.Number)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected status placed, got %q", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("expected payment unpaid, got %q", order.PaymentStatus)
	}
	if order.Totals.Subtotal != 1250 {
		t.Fatalf("expected subtotal 1250, got %d", order.Totals.Subtotal)
	}
	if order.PaymentIntentID != "pi_123" {
		t.Fatalf("expected payment intent attached, got %q", order.PaymentIntentID)
	}
	if intentReq.Amount != order.Totals.Total {
		t.Fatalf("expected intent for %d, got %d", order.Totals.Total, intentReq.Amount)
	}
	if updatedOrder.PaymentIntentID != "pi_123" {
		t.Fatalf("expected intent persisted on order")
	}
	if len(placed.Lines) != 2 {
		t.Fatalf("expected 2 stock lines, got %d", len(placed.Lines))
	}
	if placed.Lines[0].Quantity != 2 || placed.Lines[0].ProductID != "prd-1" {
		t.Fatalf("unexpected first stock line %+v", placed.Lines[0])
	}
	if !cartDeleted {
		t.Fatalf("expected cart cleared after placement")
	}
	if len(dispatched) != 1 || dispatched[0].Type != "order.placed" {
		t.Fatalf("expected one order.placed event, got %+v", dispatched)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].To != domain.OrderStatusPlaced {
		t.Fatalf("expected initial history entry, got %+v", order.StatusHistory)
	}
}

func TestCheckoutServiceSubmitOrderMergesDuplicateVariants(t *testing.T) {
	now := time.Date(2025, 8, 2, 11, 0, 0, 0, time.UTC)
	var placed repositories.PlaceOrderRequest
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			placed = req
			return repositories.PlaceOrderResult{}, nil
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID: userID, UserID: userID, Currency: "INR",
				Lines: []domain.CartLine{
					{ProductID: "prd-1", Size: "M", Color: "Red", UnitPrice: 500, Quantity: 1},
					{ProductID: "prd-1", Size: "M", Color: "Red", UnitPrice: 500, Quantity: 2},
				},
			}, nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 1, nil }},
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(placed.Lines) != 1 {
		t.Fatalf("expected merged stock line, got %d", len(placed.Lines))
	}
	if placed.Lines[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", placed.Lines[0].Quantity)
	}
}

func TestCheckoutServiceSubmitOrderIdempotentReplay(t *testing.T) {
	existing := domain.Order{ID: "ord_existing", Number: "FV-2025-000001", UserID: "user-1"}
	placeCalls := 0
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			placeCalls++
			return repositories.PlaceOrderResult{}, nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			if key != "key-1" {
				t.Fatalf("unexpected key %q", key)
			}
			return existing, nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    &stubCartRepository{},
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "ord_existing" {
		t.Fatalf("expected replayed order, got %q", order.ID)
	}
	if placeCalls != 0 {
		t.Fatalf("expected no stock placement on replay, got %d", placeCalls)
	}
}

func TestCheckoutServiceSubmitOrderEmptyCart(t *testing.T) {
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: userID, UserID: userID, Currency: "INR"}, nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   &stubIntakeRepository{},
		Counters: &stubCounterRepository{},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestCheckoutServiceSubmitOrderRequiresIdempotencyKey(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    &stubCartRepository{},
		Orders:   &stubOrderRepository{},
		Intake:   &stubIntakeRepository{},
		Counters: &stubCounterRepository{},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		ShippingAddress: checkoutAddress(),
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestCheckoutServiceSubmitOrderIncompleteAddress(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    &stubCartRepository{},
		Orders:   &stubOrderRepository{},
		Intake:   &stubIntakeRepository{},
		Counters: &stubCounterRepository{},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	addr := checkoutAddress()
	addr.PostalCode = " "
	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: addr,
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}

func TestCheckoutServiceSubmitOrderInsufficientStock(t *testing.T) {
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			return repositories.PlaceOrderResult{}, repositories.NewStockError(
				repositories.StockErrorInsufficient, "prd-1 M/Red has 1 left", nil)
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 7, nil }},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if !errors.Is(err, ErrCheckoutInsufficientStock) {
		t.Fatalf("expected ErrCheckoutInsufficientStock, got %v", err)
	}
}

func TestCheckoutServiceSubmitOrderRetriesTransientFailure(t *testing.T) {
	attempts := 0
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			attempts++
			if attempts == 1 {
				return repositories.PlaceOrderResult{}, &repositoryErrorStub{unavailable: true}
			}
			return repositories.PlaceOrderResult{}, nil
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 8, nil }},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 placement attempts, got %d", attempts)
	}
}

func TestCheckoutServiceSubmitOrderExhaustsRetries(t *testing.T) {
	attempts := 0
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			attempts++
			return repositories.PlaceOrderResult{}, &repositoryErrorStub{unavailable: true}
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:         carts,
		Orders:        orders,
		Intake:        intake,
		Counters:      &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 9, nil }},
		Clock:         time.Now,
		PlaceAttempts: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if !errors.Is(err, ErrOrderCreationFailed) {
		t.Fatalf("expected ErrOrderCreationFailed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestCheckoutServiceSubmitOrderSurvivesGatewayFailure(t *testing.T) {
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			return repositories.PlaceOrderResult{}, nil
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			return domain.Order{}, &repositoryErrorStub{notFound: true}
		},
	}
	gateway := &stubPaymentGateway{
		createFunc: func(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
			return PaymentIntent{}, errors.New("psp down")
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 10, nil }},
		Gateway:  gateway,
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("expected order to stand despite gateway failure, got %v", err)
	}
	if order.PaymentIntentID != "" {
		t.Fatalf("expected no payment intent, got %q", order.PaymentIntentID)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("expected order unpaid, got %q", order.PaymentStatus)
	}
}

func TestCheckoutServiceSubmitOrderLostIdempotencyRace(t *testing.T) {
	lookups := 0
	intake := &stubIntakeRepository{
		placeFunc: func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
			return repositories.PlaceOrderResult{}, &repositoryErrorStub{conflict: true}
		},
	}
	carts := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return checkoutCart(userID), nil
		},
	}
	orders := &stubOrderRepository{
		findByIdempotencyKeyFunc: func(ctx context.Context, userID, key string) (domain.Order, error) {
			lookups++
			if lookups == 1 {
				return domain.Order{}, &repositoryErrorStub{notFound: true}
			}
			return domain.Order{ID: "ord_winner", UserID: userID}, nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Orders:   orders,
		Intake:   intake,
		Counters: &stubCounterRepository{nextFunc: func(ctx context.Context, counterID string, step int64) (int64, error) { return 11, nil }},
		Clock:    time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.SubmitOrder(context.Background(), SubmitOrderCommand{
		UserID:          "user-1",
		IdempotencyKey:  "key-1",
		ShippingAddress: checkoutAddress(),
	})
	if err != nil {
		t.Fatalf("expected lost race to resolve cleanly, got %v", err)
	}
	if lookups != 2 {
		t.Fatalf("expected lookup after conflict, got %d", lookups)
	}
}

type stubOrderRepository struct {
	insertFunc               func(ctx context.Context, order domain.Order) error
	updateFunc               func(ctx context.Context, order domain.Order) error
	findByIDFunc             func(ctx context.Context, orderID string) (domain.Order, error)
	findByIdempotencyKeyFunc func(ctx context.Context, userID, key string) (domain.Order, error)
	findByPaymentIntentFunc  func(ctx context.Context, intentID string) (domain.Order, error)
	listFunc                 func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByIdempotencyKey(ctx context.Context, userID, key string) (domain.Order, error) {
	if s.findByIdempotencyKeyFunc != nil {
		return s.findByIdempotencyKeyFunc(ctx, userID, key)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if s.findByPaymentIntentFunc != nil {
		return s.findByPaymentIntentFunc(ctx, intentID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, errors.New("not implemented")
}

type stubIntakeRepository struct {
	placeFunc   func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error)
	restockFunc func(ctx context.Context, req repositories.CancelRestockRequest) error
}

func (s *stubIntakeRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if s.placeFunc != nil {
		return s.placeFunc(ctx, req)
	}
	return repositories.PlaceOrderResult{}, errors.New("not implemented")
}

func (s *stubIntakeRepository) CancelRestock(ctx context.Context, req repositories.CancelRestockRequest) error {
	if s.restockFunc != nil {
		return s.restockFunc(ctx, req)
	}
	return errors.New("not implemented")
}

type stubCounterRepository struct {
	nextFunc      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFunc func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFunc != nil {
		return s.nextFunc(ctx, counterID, step)
	}
	return 0, errors.New("not implemented")
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFunc != nil {
		return s.configureFunc(ctx, counterID, cfg)
	}
	return nil
}

type stubPaymentGateway struct {
	createFunc func(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	refundFunc func(ctx context.Context, req RefundIntentRequest) error
}

func (s *stubPaymentGateway) CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, req)
	}
	return PaymentIntent{}, errors.New("not implemented")
}

func (s *stubPaymentGateway) RefundIntent(ctx context.Context, req RefundIntentRequest) error {
	if s.refundFunc != nil {
		return s.refundFunc(ctx, req)
	}
	return nil
}

type stubNotificationDispatcher struct {
	dispatchFunc func(ctx context.Context, event domain.OrderEvent) error
}

func (s *stubNotificationDispatcher) Dispatch(ctx context.Context, event domain.OrderEvent) error {
	if s.dispatchFunc != nil {
		return s.dispatchFunc(ctx, event)
	}
	return nil
}
