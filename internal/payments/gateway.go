package payments

import (
	"context"
	"errors"

	"github.com/forevish/api/internal/services"
)

// Gateway adapts the provider Manager to the service-layer payment contract.
type Gateway struct {
	manager *Manager
}

// NewGateway wraps the manager for use by checkout and order services.
func NewGateway(manager *Manager) (*Gateway, error) {
	if manager == nil {
		return nil, errors.New("payments: manager is required")
	}
	return &Gateway{manager: manager}, nil
}

// CreateIntent opens a payment intent for the order total.
func (g *Gateway) CreateIntent(ctx context.Context, req services.PaymentIntentRequest) (services.PaymentIntent, error) {
	if g == nil || g.manager == nil {
		return services.PaymentIntent{}, errors.New("payments: gateway not initialised")
	}

	intent, err := g.manager.CreateIntent(ctx, PaymentContext{Currency: req.Currency}, IntentRequest{
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: req.OrderID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return services.PaymentIntent{}, err
	}

	return services.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// RefundIntent requests a full refund of the intent.
func (g *Gateway) RefundIntent(ctx context.Context, req services.RefundIntentRequest) error {
	if g == nil || g.manager == nil {
		return errors.New("payments: gateway not initialised")
	}
	_, err := g.manager.Refund(ctx, PaymentContext{}, RefundRequest{
		IntentID: req.IntentID,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	return err
}

var _ services.PaymentGateway = (*Gateway)(nil)
