package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIKeyHeader carries the panel credential on connect calls.
const APIKeyHeader = "X-API-Key"

const maxBodyBytes = 64 << 10

// APIHandler serves the connect endpoint and operational routes.
type APIHandler struct {
	svc     ports.RedemptionService
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance. A nil limiter disables rate limiting.
func NewAPIHandler(svc ports.RedemptionService, limiter *RateLimiter, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{svc: svc, limiter: limiter, logger: logger}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	var connect http.Handler = http.HandlerFunc(h.Connect)
	if h.limiter != nil {
		connect = h.limiter.Middleware(connect)
	}
	mux.Handle("POST /connect/{username}", connect)
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.svc.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

type connectRequest struct {
	EncryptedData string `json:"encryptedData"`
}

type connectSuccess struct {
	Status        bool   `json:"status"`
	EncryptedData string `json:"encryptedData"`
	Reason        string `json:"reason"`
}

type connectFailure struct {
	Status          bool   `json:"status"`
	Data            any    `json:"data"`
	Reason          string `json:"reason"`
	MaintenanceMode bool   `json:"maintenanceMode,omitempty"`
}

// Connect redeems a key for the reseller named in the path.
func (h *APIHandler) Connect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := r.PathValue("username")

	var body connectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.fail(w, start, domain.NewError(domain.KindValidation, domain.ReasonInvalidPayload))
		return
	}

	res, err := h.svc.Redeem(r.Context(), ports.RedeemRequest{
		Endpoint:      endpoint,
		APIKey:        r.Header.Get(APIKeyHeader),
		EncryptedData: body.EncryptedData,
		ClientIP:      ClientIP(r),
	})
	if err != nil {
		de := domain.AsError(err)
		if de.Kind == domain.KindInternal {
			h.logger.Error("redemption failed", "endpoint", endpoint, "error", err)
		}
		h.fail(w, start, de)
		return
	}

	observe("success", start)
	h.writeJSON(w, http.StatusOK, connectSuccess{Status: true, EncryptedData: res.EncryptedData, Reason: domain.ReasonSuccess})
}

func (h *APIHandler) fail(w http.ResponseWriter, start time.Time, de *domain.Error) {
	observe(string(de.Kind), start)
	writeFailure(w, h.logger, de)
}

func observe(outcome string, start time.Time) {
	metrics.RedemptionsTotal.WithLabelValues(outcome).Inc()
	metrics.RedemptionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func writeFailure(w http.ResponseWriter, logger *slog.Logger, de *domain.Error) {
	resp := connectFailure{
		Reason:          de.Reason,
		MaintenanceMode: de.Kind == domain.KindMaintenance,
	}
	writeJSON(w, logger, domain.HTTPStatus(de.Kind), resp)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	writeJSON(w, h.logger, code, v)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
