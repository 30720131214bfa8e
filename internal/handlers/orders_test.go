package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/platform/auth"
	"github.com/forevish/api/internal/services"
)

func TestOrderHandlersListOrdersSuccess(t *testing.T) {
	placed := time.Date(2025, 8, 1, 11, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		listFunc: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			if filter.UserID != "user-1" {
				t.Fatalf("unexpected user id %q", filter.UserID)
			}
			if len(filter.Status) != 2 || filter.Status[0] != domain.OrderStatusPlaced || filter.Status[1] != domain.OrderStatusShipped {
				t.Fatalf("unexpected status filter %#v", filter.Status)
			}
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{
						ID:            "ord_1",
						Number:        "FV-2025-000001",
						UserID:        "user-1",
						Currency:      "INR",
						Status:        domain.OrderStatusPlaced,
						PaymentStatus: domain.PaymentStatusUnpaid,
						PlacedAt:      placed,
					},
				},
				NextPageToken: "tok",
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=placed,shipped", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp.Orders))
	}
	if resp.Orders[0].Number != "FV-2025-000001" {
		t.Fatalf("unexpected order number %q", resp.Orders[0].Number)
	}
	if resp.NextPageToken != "tok" {
		t.Fatalf("expected next page token, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersGetOrderSuccess(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			if orderID != "ord_9" {
				t.Fatalf("unexpected order id %q", orderID)
			}
			if opts.UserID != "user-3" {
				t.Fatalf("expected ownership scoped to user-3, got %q", opts.UserID)
			}
			return services.Order{
				ID:            "ord_9",
				UserID:        "user-3",
				Currency:      "INR",
				Status:        domain.OrderStatusShipped,
				PaymentStatus: domain.PaymentStatusPaid,
				Items: []services.OrderItem{
					{ProductID: "prd-1", Name: "Floral Kurti", Size: "M", Color: "Red", UnitPrice: 500, Quantity: 2, LineTotal: 1000},
				},
				StatusHistory: []services.OrderStatusChange{
					{From: domain.OrderStatusPlaced, To: domain.OrderStatusProcessing, Actor: "staff-1"},
				},
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_9", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Order.Items) != 1 || resp.Order.Items[0].LineTotal != 1000 {
		t.Fatalf("unexpected items %#v", resp.Order.Items)
	}
	if len(resp.Order.StatusHistory) != 1 || resp.Order.StatusHistory[0].To != "processing" {
		t.Fatalf("unexpected history %#v", resp.Order.StatusHistory)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_missing", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrderSuccess(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            cmd.OrderID,
				UserID:        cmd.UserID,
				Currency:      "INR",
				Status:        domain.OrderStatusCancelled,
				PaymentStatus: domain.PaymentStatusUnpaid,
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_2/cancel", strings.NewReader(`{"reason":" changed my mind "}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_2" || captured.UserID != "user-2" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Reason != "changed my mind" {
		t.Fatalf("expected trimmed reason, got %q", captured.Reason)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != "cancelled" {
		t.Fatalf("expected cancelled status, got %q", resp.Order.Status)
	}
}

func TestOrderHandlersCancelOrderEmptyBody(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			if cmd.Reason != "" {
				t.Fatalf("expected empty reason, got %q", cmd.Reason)
			}
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_2/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrderInvalidTransition(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_2/cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invalid_transition") {
		t.Fatalf("expected invalid_transition code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersListOrdersUnauthenticated(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, &stubOrderService{}).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubOrderService struct {
	getFunc           func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error)
	findByIntentFunc  func(ctx context.Context, intentID string) (services.Order, error)
	listFunc          func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc    func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	updatePaymentFunc func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error)
	cancelFunc        func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) FindByPaymentIntent(ctx context.Context, intentID string) (services.Order, error) {
	if s.findByIntentFunc != nil {
		return s.findByIntentFunc(ctx, intentID)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
	if s.updatePaymentFunc != nil {
		return s.updatePaymentFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}
