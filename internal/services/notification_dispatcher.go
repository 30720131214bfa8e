package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/forevish/api/internal/domain"
)

var errDispatcherPublisherRequired = errors.New("notification dispatcher: publisher is required")

// ErrNotificationInvalidEvent indicates the event lacked required fields.
var ErrNotificationInvalidEvent = errors.New("notification dispatcher: invalid event")

// OrderEventPublisher delivers serialized order events to the message bus.
type OrderEventPublisher interface {
	PublishEvent(ctx context.Context, event domain.OrderEvent) (string, error)
}

// NotificationDispatcherDeps enumerates collaborators for the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

type notificationDispatcher struct {
	publisher OrderEventPublisher
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationDispatcher wires the publisher into a NotificationDispatcher.
// Dispatch makes exactly one publish attempt; callers treat failures as
// log-and-continue, so a flaky bus never blocks an order.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Publisher == nil {
		return nil, errDispatcherPublisherRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationDispatcher{
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (d *notificationDispatcher) Dispatch(ctx context.Context, event OrderEvent) error {
	if strings.TrimSpace(event.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrNotificationInvalidEvent)
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrNotificationInvalidEvent)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	messageID, err := d.publisher.PublishEvent(ctx, event)
	if err != nil {
		d.logger(ctx, "notifications.publish_failed", map[string]any{
			"event":   event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
		return fmt.Errorf("dispatch %s: %w", event.Type, err)
	}

	d.logger(ctx, "notifications.published", map[string]any{
		"event":     event.Type,
		"orderId":   event.OrderID,
		"messageId": messageID,
	})
	return nil
}

var _ NotificationDispatcher = (*notificationDispatcher)(nil)
