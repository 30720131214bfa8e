package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	stripewebhook "github.com/stripe/stripe-go/v78/webhook"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/platform/httpx"
	"github.com/forevish/api/internal/services"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodySize    = 256 * 1024

	carrierActor = "carrier"
)

// WebhookHandlers receives events from the payment provider and the shipping
// carrier and applies them to the matching orders.
type WebhookHandlers struct {
	orders services.OrderService

	stripeSecret string
	carrierAuth  func(http.Handler) http.Handler

	logger func(ctx context.Context, msg string, fields map[string]any)
}

// WebhookOption customises webhook handling.
type WebhookOption func(*WebhookHandlers)

// WithStripeWebhookSecret sets the endpoint secret used to verify Stripe signatures.
func WithStripeWebhookSecret(secret string) WebhookOption {
	return func(h *WebhookHandlers) {
		h.stripeSecret = strings.TrimSpace(secret)
	}
}

// WithCarrierAuth guards the carrier endpoint with the given middleware.
func WithCarrierAuth(middleware func(http.Handler) http.Handler) WebhookOption {
	return func(h *WebhookHandlers) {
		h.carrierAuth = middleware
	}
}

// WithWebhookLogger sets the structured logger.
func WithWebhookLogger(logger func(ctx context.Context, msg string, fields map[string]any)) WebhookOption {
	return func(h *WebhookHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewWebhookHandlers constructs the webhook surface.
func NewWebhookHandlers(orders services.OrderService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		orders: orders,
		logger: func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
	if h.carrierAuth != nil {
		r.With(h.carrierAuth).Post("/carrier", h.handleCarrier)
	} else {
		r.Post("/carrier", h.handleCarrier)
	}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Detail   string `json:"detail,omitempty"`
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.stripeSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_not_configured", "stripe webhook secret not configured", http.StatusServiceUnavailable))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	event, err := stripewebhook.ConstructEvent(payload, r.Header.Get(stripeSignatureHeader), h.stripeSecret)
	if err != nil {
		h.logger(ctx, "webhooks.stripe.signature_failed", map[string]any{"error": err.Error()})
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "stripe signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.applyIntentPayment(ctx, w, event, domain.PaymentStatusPaid)
	case "charge.refunded":
		h.applyChargeRefund(ctx, w, event)
	case "payment_intent.payment_failed":
		intentID := intentIDFromEvent(event)
		h.logger(ctx, "webhooks.stripe.payment_failed", map[string]any{"intentId": intentID})
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
	default:
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Detail: "event ignored"})
	}
}

func (h *WebhookHandlers) applyIntentPayment(ctx context.Context, w http.ResponseWriter, event stripe.Event, target domain.PaymentStatus) {
	intentID := intentIDFromEvent(event)
	if intentID == "" {
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Detail: "no intent in event"})
		return
	}
	h.applyPaymentStatus(ctx, w, intentID, target, string(event.Type))
}

func (h *WebhookHandlers) applyChargeRefund(ctx context.Context, w http.ResponseWriter, event stripe.Event) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil || charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Detail: "no intent in charge"})
		return
	}
	h.applyPaymentStatus(ctx, w, charge.PaymentIntent.ID, domain.PaymentStatusRefunded, string(event.Type))
}

func (h *WebhookHandlers) applyPaymentStatus(ctx context.Context, w http.ResponseWriter, intentID string, target domain.PaymentStatus, eventType string) {
	order, err := h.orders.FindByPaymentIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			// Unknown intents are acknowledged so the provider stops retrying.
			h.logger(ctx, "webhooks.stripe.order_not_found", map[string]any{"intentId": intentID, "event": eventType})
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Detail: "order not found"})
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("order_lookup_failed", "failed to resolve order for intent", http.StatusServiceUnavailable))
		return
	}

	if _, err := h.orders.UpdatePaymentStatus(ctx, services.PaymentStatusCommand{
		OrderID: order.ID,
		Target:  target,
		Actor:   "stripe",
		Note:    eventType,
	}); err != nil {
		if errors.Is(err, services.ErrOrderInvalidTransition) {
			h.logger(ctx, "webhooks.stripe.transition_rejected", map[string]any{
				"orderId": order.ID,
				"target":  string(target),
				"event":   eventType,
			})
			writeJSONResponse(w, http.StatusOK, webhookAck{Received: true, Detail: "transition rejected"})
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_update_failed", "failed to apply payment status", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
}

func intentIDFromEvent(event stripe.Event) string {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return ""
	}
	return intent.ID
}

type carrierEventRequest struct {
	OrderID        string `json:"order_id"`
	Event          string `json:"event"`
	TrackingNumber string `json:"tracking_number,omitempty"`
}

func (h *WebhookHandlers) handleCarrier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read webhook payload", http.StatusBadRequest))
		return
	}

	var req carrierEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	var target domain.OrderStatus
	switch strings.ToLower(strings.TrimSpace(req.Event)) {
	case "shipped":
		target = domain.OrderStatusShipped
	case "delivered":
		target = domain.OrderStatusDelivered
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported carrier event", http.StatusBadRequest))
		return
	}

	note := "carrier event " + strings.ToLower(strings.TrimSpace(req.Event))
	if tracking := strings.TrimSpace(req.TrackingNumber); tracking != "" {
		note += " tracking " + tracking
	}

	if _, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Target:  target,
		Actor:   carrierActor,
		Note:    note,
	}); err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
}
