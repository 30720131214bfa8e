package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/services"
)

const testStripeSecret = "whsec_test_secret"

func stripeSignature(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeEventPayload(eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","type":%q,"api_version":%q,"data":{"object":%s}}`, eventType, stripe.APIVersion, objectJSON))
}

func newWebhookRouter(orders services.OrderService, opts ...WebhookOption) chi.Router {
	router := chi.NewRouter()
	router.Route("/webhooks", NewWebhookHandlers(orders, opts...).Routes)
	return router
}

func TestWebhookHandlersStripePaymentSucceeded(t *testing.T) {
	var captured services.PaymentStatusCommand
	orders := &stubOrderService{
		findByIntentFunc: func(ctx context.Context, intentID string) (services.Order, error) {
			if intentID != "pi_123" {
				t.Fatalf("unexpected intent id %q", intentID)
			}
			return services.Order{ID: "ord_1", PaymentIntentID: "pi_123"}, nil
		},
		updatePaymentFunc: func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, PaymentStatus: cmd.Target}, nil
		},
	}

	router := newWebhookRouter(orders, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("payment_intent.succeeded", `{"id":"pi_123"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, stripeSignature(payload, testStripeSecret))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Target != domain.PaymentStatusPaid {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Actor != "stripe" {
		t.Fatalf("expected actor stripe, got %q", captured.Actor)
	}
}

func TestWebhookHandlersStripeChargeRefunded(t *testing.T) {
	var captured services.PaymentStatusCommand
	orders := &stubOrderService{
		findByIntentFunc: func(ctx context.Context, intentID string) (services.Order, error) {
			return services.Order{ID: "ord_2", PaymentIntentID: intentID}, nil
		},
		updatePaymentFunc: func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, PaymentStatus: cmd.Target}, nil
		},
	}

	router := newWebhookRouter(orders, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("charge.refunded", `{"id":"ch_1","payment_intent":"pi_456"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, stripeSignature(payload, testStripeSecret))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_2" || captured.Target != domain.PaymentStatusRefunded {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestWebhookHandlersStripeInvalidSignature(t *testing.T) {
	router := newWebhookRouter(&stubOrderService{}, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("payment_intent.succeeded", `{"id":"pi_123"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, "t=1,v1=deadbeef")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "signature_invalid") {
		t.Fatalf("expected signature_invalid code, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersStripeNotConfigured(t *testing.T) {
	router := newWebhookRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestWebhookHandlersStripeUnknownIntentAcked(t *testing.T) {
	orders := &stubOrderService{
		findByIntentFunc: func(ctx context.Context, intentID string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	router := newWebhookRouter(orders, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("payment_intent.succeeded", `{"id":"pi_unknown"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, stripeSignature(payload, testStripeSecret))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected unknown intent to be acknowledged with 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "order not found") {
		t.Fatalf("expected ack detail, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersStripeTransitionRejectedAcked(t *testing.T) {
	orders := &stubOrderService{
		findByIntentFunc: func(ctx context.Context, intentID string) (services.Order, error) {
			return services.Order{ID: "ord_3", PaymentIntentID: intentID}, nil
		},
		updatePaymentFunc: func(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}

	router := newWebhookRouter(orders, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("payment_intent.succeeded", `{"id":"pi_123"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, stripeSignature(payload, testStripeSecret))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected rejected transition to be acknowledged with 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "transition rejected") {
		t.Fatalf("expected ack detail, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersStripeIgnoresUnhandledEvents(t *testing.T) {
	router := newWebhookRouter(&stubOrderService{}, WithStripeWebhookSecret(testStripeSecret))

	payload := stripeEventPayload("customer.created", `{"id":"cus_1"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set(stripeSignatureHeader, stripeSignature(payload, testStripeSecret))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "event ignored") {
		t.Fatalf("expected ignore detail, got %s", rr.Body.String())
	}
}

func TestWebhookHandlersCarrierShipped(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
		},
	}

	router := newWebhookRouter(orders)

	body := `{"order_id":"ord_5","event":"shipped","tracking_number":"TRK123"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_5" || captured.Target != domain.OrderStatusShipped {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Actor != carrierActor {
		t.Fatalf("expected carrier actor, got %q", captured.Actor)
	}
	if !strings.Contains(captured.Note, "TRK123") {
		t.Fatalf("expected tracking number in note, got %q", captured.Note)
	}
}

func TestWebhookHandlersCarrierDelivered(t *testing.T) {
	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			if cmd.Target != domain.OrderStatusDelivered {
				t.Fatalf("expected delivered target, got %q", cmd.Target)
			}
			return services.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
		},
	}

	router := newWebhookRouter(orders)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(`{"order_id":"ord_5","event":"Delivered"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestWebhookHandlersCarrierUnsupportedEvent(t *testing.T) {
	router := newWebhookRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(`{"order_id":"ord_5","event":"lost"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersCarrierAuthMiddlewareApplied(t *testing.T) {
	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Carrier-Token") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{ID: cmd.OrderID, Status: cmd.Target}, nil
		},
	}

	router := newWebhookRouter(orders, WithCarrierAuth(guard))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(`{"order_id":"ord_5","event":"shipped"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/carrier", strings.NewReader(`{"order_id":"ord_5","event":"shipped"}`))
	req.Header.Set("X-Carrier-Token", "secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with token, got %d", rr.Code)
	}
}
