package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forevish/api/internal/domain"
	"github.com/forevish/api/internal/services"
)

func TestSystemHandlersHealthReportsFailingChecks(t *testing.T) {
	generated := time.Date(2025, 8, 15, 7, 0, 0, 0, time.UTC)
	svc := &stubSystemService{
		report: services.SystemHealthReport{
			Status:      domain.HealthStatusDegraded,
			GeneratedAt: generated,
			Checks: map[string]domain.SystemHealthCheck{
				"firestore":     {Status: domain.HealthStatusOK, Latency: 20 * time.Millisecond, CheckedAt: generated},
				"pubsub":        {Status: domain.HealthStatusError, Error: "topic missing", CheckedAt: generated},
				"secretManager": {Status: domain.HealthStatusError, Error: "permission denied", CheckedAt: generated},
			},
		},
	}

	router := chi.NewRouter()
	router.Route("/internal", NewSystemHandlers(svc).Routes)

	req := httptest.NewRequest(http.MethodGet, "/internal/system/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp systemHealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %q", resp.Status)
	}
	if len(resp.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(resp.Checks))
	}
	if len(resp.Failing) != 2 || resp.Failing[0] != "pubsub" || resp.Failing[1] != "secretManager" {
		t.Fatalf("unexpected failing list %#v", resp.Failing)
	}
	if resp.GeneratedAt == "" {
		t.Fatalf("expected generated_at to be set")
	}
}

func TestSystemHandlersInfo(t *testing.T) {
	started := time.Date(2025, 8, 15, 6, 0, 0, 0, time.UTC)
	svc := &stubSystemService{
		info: services.SystemInfo{
			Environment: "prod",
			Version:     "1.2.0",
			StartedAt:   started,
			Uptime:      90 * time.Minute,
		},
	}

	router := chi.NewRouter()
	router.Route("/internal", NewSystemHandlers(svc).Routes)

	req := httptest.NewRequest(http.MethodGet, "/internal/system/info", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp systemInfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Environment != "prod" || resp.Version != "1.2.0" {
		t.Fatalf("unexpected info %#v", resp)
	}
	if resp.UptimeSeconds != 5400 {
		t.Fatalf("expected uptime 5400s, got %d", resp.UptimeSeconds)
	}
}

func TestSystemHandlersServiceUnavailable(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/internal", NewSystemHandlers(nil).Routes)

	req := httptest.NewRequest(http.MethodGet, "/internal/system/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
