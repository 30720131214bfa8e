package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: orders repository is required")
	errOrderIntakeRequired     = errors.New("order service: intake repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the backend could not fulfil the request.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderInvalidTransition indicates the requested status change is not allowed
// from the order's current state.
var ErrOrderInvalidTransition = errors.New("order service: invalid transition")

// ErrOrderConflict indicates the order changed concurrently.
var ErrOrderConflict = errors.New("order service: conflict")

const defaultOrderPageSize = 20

// orderStateTransitions defines the forward edges of the fulfilment machine.
// Cancellation is handled separately because it also restores stock.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPlaced:     {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

// paymentStateTransitions defines the independent payment axis.
var paymentStateTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusUnpaid:   {domain.PaymentStatusPaid},
	domain.PaymentStatusPaid:     {domain.PaymentStatusRefunded},
	domain.PaymentStatusRefunded: {},
}

// cancellableStatuses enumerate the states a customer or operator may cancel from.
var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPlaced,
	domain.OrderStatusProcessing,
}

// OrderServiceDeps wires order lifecycle dependencies.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Intake        repositories.OrderIntakeRepository
	Gateway       PaymentGateway
	Notifications NotificationDispatcher
	Clock         func() time.Time
	Logger        func(context.Context, string, map[string]any)
}

type orderService struct {
	orders        repositories.OrderRepository
	intake        repositories.OrderIntakeRepository
	gateway       PaymentGateway
	notifications NotificationDispatcher
	now           func() time.Time
	logger        func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Intake == nil {
		return nil, errOrderIntakeRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		intake:        deps.Intake,
		gateway:       deps.Gateway,
		notifications: deps.Notifications,
		now:           func() time.Time { return deps.Clock().UTC() },
		logger:        logger,
	}, nil
}

// GetOrder loads one order. When opts.UserID is set a foreign order reads as
// not found rather than forbidden, so order IDs cannot be probed.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if uid := strings.TrimSpace(opts.UserID); uid != "" && order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// FindByPaymentIntent resolves the order that owns a PSP intent. Used by the
// payment webhook to map intent events back to orders.
func (s *orderService) FindByPaymentIntent(ctx context.Context, intentID string) (Order, error) {
	id := strings.TrimSpace(intentID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: payment intent id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByPaymentIntent(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// ListOrders pages through orders newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if filter.Pagination.PageSize <= 0 {
		filter.Pagination.PageSize = defaultOrderPageSize
	}
	for _, status := range filter.Status {
		if _, ok := orderStateTransitions[status]; !ok {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// TransitionStatus moves the order along the fulfilment machine. Items and
// amounts never change; only the status axes, history, and updatedAt do.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, ok := orderStateTransitions[cmd.Target]; !ok {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}
	if cmd.Target == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: use cancel for cancellation", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if cmd.ExpectedStatus != nil && order.Status != *cmd.ExpectedStatus {
		return Order{}, fmt.Errorf("%w: order is %s, expected %s", ErrOrderConflict, order.Status, *cmd.ExpectedStatus)
	}
	if !canTransition(order.Status, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, cmd.Target)
	}

	now := s.now()
	previous := order.Status
	order.Status = cmd.Target
	order.StatusHistory = append(order.StatusHistory, domain.OrderStatusChange{
		From:       previous,
		To:         cmd.Target,
		Actor:      strings.TrimSpace(cmd.Actor),
		Note:       strings.TrimSpace(cmd.Note),
		OccurredAt: now,
	})
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "orders.status_changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(cmd.Target),
	})
	s.dispatchEvent(ctx, "order.status_changed", order, map[string]string{"from": string(previous)})

	return order, nil
}

// UpdatePaymentStatus moves the payment axis. It never touches the fulfilment
// status: a paid order still has to be shipped, and an unpaid one can ship
// for cash-on-delivery flows.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if _, ok := paymentStateTransitions[cmd.Target]; !ok {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Target)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.PaymentStatus == cmd.Target {
		return order, nil
	}
	if !slices.Contains(paymentStateTransitions[order.PaymentStatus], cmd.Target) {
		return Order{}, fmt.Errorf("%w: payment %s -> %s", ErrOrderInvalidTransition, order.PaymentStatus, cmd.Target)
	}

	order.PaymentStatus = cmd.Target
	order.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "orders.payment_status_changed", map[string]any{
		"orderId": order.ID,
		"to":      string(cmd.Target),
		"actor":   strings.TrimSpace(cmd.Actor),
	})
	s.dispatchEvent(ctx, "order.payment_changed", order, nil)

	return order, nil
}

// Cancel moves the order to cancelled and restores its stock in one
// transaction. A paid order is marked refunded on the payment axis.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	id := strings.TrimSpace(cmd.OrderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if uid := strings.TrimSpace(cmd.UserID); uid != "" && order.UserID != uid {
		return Order{}, ErrOrderNotFound
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, order.Status, domain.OrderStatusCancelled)
	}

	now := s.now()
	previous := order.Status
	wasPaid := order.PaymentStatus == domain.PaymentStatusPaid
	order.Status = domain.OrderStatusCancelled
	if wasPaid {
		order.PaymentStatus = domain.PaymentStatusRefunded
	}
	order.StatusHistory = append(order.StatusHistory, domain.OrderStatusChange{
		From:       previous,
		To:         domain.OrderStatusCancelled,
		Actor:      firstNonEmpty(strings.TrimSpace(cmd.Actor), strings.TrimSpace(cmd.UserID)),
		Note:       strings.TrimSpace(cmd.Reason),
		OccurredAt: now,
	})
	order.UpdatedAt = now

	err = s.intake.CancelRestock(ctx, repositories.CancelRestockRequest{
		Order:          order,
		Lines:          stockLinesFromItems(order.Items),
		ExpectedStatus: previous,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Order{}, fmt.Errorf("%w: order %s is no longer %s", ErrOrderInvalidTransition, order.ID, previous)
		}
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "orders.cancelled", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
	})

	// The refund is asked for after the cancel is durable; a gateway failure
	// leaves the order cancelled and is reconciled by the PSP webhook.
	if wasPaid && s.gateway != nil && order.PaymentIntentID != "" {
		err := s.gateway.RefundIntent(ctx, RefundIntentRequest{
			IntentID: order.PaymentIntentID,
			Reason:   "requested_by_customer",
			Metadata: map[string]string{"orderId": order.ID},
		})
		if err != nil {
			s.logger(ctx, "orders.refund_failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
	s.dispatchEvent(ctx, "order.cancelled", order, map[string]string{"reason": strings.TrimSpace(cmd.Reason)})

	return order, nil
}

func (s *orderService) dispatchEvent(ctx context.Context, eventType string, order domain.Order, attrs map[string]string) {
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
		Attributes:    attrs,
	}
	if err := s.notifications.Dispatch(ctx, event); err != nil {
		s.logger(ctx, "orders.notification_failed", map[string]any{
			"orderId": order.ID,
			"event":   eventType,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		case repoErr.IsUnavailable():
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

func stockLinesFromItems(items []domain.OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		lines = append(lines, repositories.StockLine{
			ProductID: item.ProductID,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
		})
	}
	return lines
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
