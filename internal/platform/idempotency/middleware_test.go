package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func TestMiddlewareRequiresKeyHeader(t *testing.T) {
	middleware := Middleware(NewMemoryStore(), WithClock(fixedClock))

	invoked := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		invoked = true
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{"cart_id":"crt_1"}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	middleware(next).ServeHTTP(rr, req)

	if invoked {
		t.Fatal("handler must not run without the key header")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	requireErrorCode(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddlewareReplaysStoredResponse(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"order_id":"ord_1"}`))
		}))

	place := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{"cart_id":"crt_1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "order-attempt-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := place()
	if calls != 1 {
		t.Fatalf("expected one handler call, got %d", calls)
	}
	if first.Code != http.StatusCreated {
		t.Fatalf("unexpected first status %d", first.Code)
	}

	second := place()
	if calls != 1 {
		t.Fatalf("replay must not reinvoke the handler, got %d calls", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Header().Get(replayHeaderName) != "true" {
		t.Fatal("expected replay marker header")
	}
	if got := second.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected json content type, got %q", got)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q differs from original %q", second.Body.String(), first.Body.String())
	}
}

func TestMiddlewareRejectsReusedKeyWithDifferentBody(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithClock(fixedClock))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "shared-key")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(`{"cart_id":"crt_1"}`); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}

	rr := send(`{"cart_id":"crt_2"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", rr.Code)
	}
	requireErrorCode(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddlewarePendingReservationConflicts(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(fixedClock))(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run while the key is pending")
		}))

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{"cart_id":"crt_1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "inflight-key")

	body, err := bufferBody(req)
	if err != nil {
		t.Fatalf("buffer body: %v", err)
	}
	requester := requesterID(req.Context())
	fingerprint := fingerprintRequest(req, body, requester)
	if _, err := store.Reserve(req.Context(), scopeKey("inflight-key", requester), fingerprint, testNow, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pending reservation, got %d", rr.Code)
	}
	requireErrorCode(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddlewareReleasesKeyWhenSaveFails(t *testing.T) {
	store := &failingSaveStore{}
	handler := Middleware(store, WithClock(fixedClock))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("ok"))
		}))

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewBufferString(`{"cart_id":"crt_1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "doomed-key")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	requireErrorCode(t, rr.Body.Bytes(), "idempotency_store_error")
	if !store.released {
		t.Fatal("expected reservation to be released after save failure")
	}
}

type failingSaveStore struct {
	released bool
}

func (s *failingSaveStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *failingSaveStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	return errors.New("save failed")
}

func (s *failingSaveStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *failingSaveStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func requireErrorCode(t *testing.T, payload []byte, want string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != want {
		t.Fatalf("expected error code %q, got %q", want, body.Error)
	}
}
