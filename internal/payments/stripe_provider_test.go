package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	newParams *stripe.PaymentIntentParams
	newResult *stripe.PaymentIntent
	newErr    error

	getID     string
	getResult *stripe.PaymentIntent
	getErr    error
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.newParams = params
	return f.newResult, f.newErr
}

func (f *fakeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.getID = id
	return f.getResult, f.getErr
}

type fakeRefundAPI struct {
	params *stripe.RefundParams
	result *stripe.Refund
	err    error
}

func (f *fakeRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return f.result, f.err
}

func newTestStripeProvider(t *testing.T, intents *fakeIntentAPI, refunds *fakeRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{intents: intents, refunds: refunds},
		Clock:   func() time.Time { return time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func TestStripeProviderCreateIntent(t *testing.T) {
	intents := &fakeIntentAPI{
		newResult: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "cs_abc",
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			Amount:       1475,
			Currency:     "inr",
		},
	}
	provider := newTestStripeProvider(t, intents, &fakeRefundAPI{})

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "ord_1",
		Amount:         1475,
		Currency:       "INR",
		IdempotencyKey: "ord_1",
		Metadata:       map[string]string{"orderNumber": "FV-2025-000042"},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.ID != "pi_123" || intent.Provider != "stripe" {
		t.Fatalf("unexpected intent %#v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", intent.Status)
	}
	if intent.ExpiresAt != time.Date(2025, 8, 10, 12, 30, 0, 0, time.UTC) {
		t.Fatalf("unexpected expiry %v", intent.ExpiresAt)
	}

	params := intents.newParams
	if params == nil || params.Amount == nil || *params.Amount != 1475 {
		t.Fatalf("unexpected params %#v", params)
	}
	if params.Currency == nil || *params.Currency != "inr" {
		t.Fatalf("expected lowercase currency, got %#v", params.Currency)
	}
	if params.Metadata["orderId"] != "ord_1" || params.Metadata["orderNumber"] != "FV-2025-000042" {
		t.Fatalf("unexpected metadata %#v", params.Metadata)
	}
}

func TestStripeProviderCreateIntentValidation(t *testing.T) {
	provider := newTestStripeProvider(t, &fakeIntentAPI{}, &fakeRefundAPI{})

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "INR"}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 100}); err == nil {
		t.Fatalf("expected error for missing currency")
	}
}

func TestStripeProviderRefundFullCycle(t *testing.T) {
	intents := &fakeIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:       "pi_123",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   1475,
			Currency: "inr",
			LatestCharge: &stripe.Charge{
				Amount:         1475,
				AmountRefunded: 1475,
				Refunded:       true,
				Paid:           true,
				Created:        time.Date(2025, 8, 10, 11, 0, 0, 0, time.UTC).Unix(),
				Currency:       "inr",
			},
		},
	}
	refunds := &fakeRefundAPI{result: &stripe.Refund{ID: "re_1"}}
	provider := newTestStripeProvider(t, intents, refunds)

	details, err := provider.Refund(context.Background(), RefundRequest{
		IntentID: "pi_123",
		Reason:   "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	if refunds.params == nil || refunds.params.PaymentIntent == nil || *refunds.params.PaymentIntent != "pi_123" {
		t.Fatalf("unexpected refund params %#v", refunds.params)
	}
	if refunds.params.Reason == nil || *refunds.params.Reason != string(stripe.RefundReasonRequestedByCustomer) {
		t.Fatalf("expected mapped refund reason, got %#v", refunds.params.Reason)
	}
	if details.Status != StatusRefunded {
		t.Fatalf("expected refunded status, got %q", details.Status)
	}
	if details.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", details.Currency)
	}
	if details.RefundedAt == nil {
		t.Fatalf("expected refunded timestamp")
	}
}

func TestStripeProviderRefundIgnoresUnknownReason(t *testing.T) {
	intents := &fakeIntentAPI{
		getResult: &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded, Amount: 500, Currency: "inr"},
	}
	refunds := &fakeRefundAPI{result: &stripe.Refund{ID: "re_2"}}
	provider := newTestStripeProvider(t, intents, refunds)

	if _, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi_123", Reason: "order cancelled"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunds.params.Reason != nil {
		t.Fatalf("unmapped reasons must be omitted, got %#v", refunds.params.Reason)
	}
}

func TestStripeProviderLookupPayment(t *testing.T) {
	intents := &fakeIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:       "pi_9",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   1000,
			Currency: "inr",
		},
	}
	provider := newTestStripeProvider(t, intents, &fakeRefundAPI{})

	details, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "pi_9"})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if intents.getID != "pi_9" {
		t.Fatalf("unexpected lookup id %q", intents.getID)
	}
	if details.Status != StatusSucceeded || !details.Captured {
		t.Fatalf("unexpected details %#v", details)
	}
}

func TestStripeProviderLookupError(t *testing.T) {
	boom := errors.New("stripe down")
	intents := &fakeIntentAPI{getErr: boom}
	provider := newTestStripeProvider(t, intents, &fakeRefundAPI{})

	if _, err := provider.LookupPayment(context.Background(), LookupRequest{IntentID: "pi_9"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewStripeProviderRequiresKeyOrClients(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key or clients")
	}
	if _, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{}}); err == nil {
		t.Fatalf("expected error for incomplete clients")
	}
}
