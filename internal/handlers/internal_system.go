package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/forevish/api/internal/platform/httpx"
	"github.com/forevish/api/internal/services"
)

// SystemHandlers exposes operator-facing diagnostics under /internal.
type SystemHandlers struct {
	system services.SystemService
}

// NewSystemHandlers constructs the internal system surface.
func NewSystemHandlers(system services.SystemService) *SystemHandlers {
	return &SystemHandlers{system: system}
}

// Routes wires the /internal/system endpoints onto the provided router.
func (h *SystemHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/system/health", h.health)
	r.Get("/system/info", h.info)
}

type systemCheckPayload struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

type systemHealthResponse struct {
	Status      string                        `json:"status"`
	GeneratedAt string                        `json:"generated_at"`
	Checks      map[string]systemCheckPayload `json:"checks"`
	Failing     []string                      `json:"failing,omitempty"`
}

func (h *SystemHandlers) health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.Health(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_check_failed", "failed to collect health report", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]systemCheckPayload, len(report.Checks))
	failing := make([]string, 0)
	for name, check := range report.Checks {
		payload := systemCheckPayload{
			Status:    check.Status,
			LatencyMs: check.Latency.Milliseconds(),
			Detail:    check.Detail,
			Error:     check.Error,
		}
		if !check.CheckedAt.IsZero() {
			payload.CheckedAt = formatTime(check.CheckedAt)
		}
		checks[name] = payload
		if check.Error != "" {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	writeJSONResponse(w, http.StatusOK, systemHealthResponse{
		Status:      report.Status,
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      checks,
		Failing:     failing,
	})
}

type systemInfoResponse struct {
	Environment   string `json:"environment"`
	Version       string `json:"version"`
	StartedAt     string `json:"started_at"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *SystemHandlers) info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_unavailable", "system service is unavailable", http.StatusServiceUnavailable))
		return
	}

	info, err := h.system.Info(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_info_failed", "failed to collect system info", http.StatusServiceUnavailable))
		return
	}

	resp := systemInfoResponse{
		Environment:   info.Environment,
		Version:       info.Version,
		UptimeSeconds: int64(info.Uptime / time.Second),
	}
	if !info.StartedAt.IsZero() {
		resp.StartedAt = formatTime(info.StartedAt)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
