package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pagepulse/pagepulse/internal/analytics"
	"github.com/pagepulse/pagepulse/internal/apikey"
	"github.com/pagepulse/pagepulse/internal/event"
	"github.com/pagepulse/pagepulse/internal/observability/logger"
	"github.com/pagepulse/pagepulse/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenants  *tenant.Service
	keys     *apikey.Service
	ingestor *event.Ingestor
	queries  *analytics.QueryService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenants *tenant.Service,
	keys *apikey.Service,
	ingestor *event.Ingestor,
	queries *analytics.QueryService,
) *Handler {
	return &Handler{
		tenants:  tenants,
		keys:     keys,
		ingestor: ingestor,
		queries:  queries,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, jwtSecret []byte) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		// Management plane: owner bearer tokens
		r.Group(func(r chi.Router) {
			r.Use(OwnerAuthMiddleware(jwtSecret))

			r.Post("/apps", h.RegisterApp)
			r.Get("/apps", h.ListApps)
			r.Get("/apps/{appID}/key", h.DescribeKey)
			r.Post("/apps/{appID}/key/rotate", h.RotateKey)
			r.Post("/keys/revoke", h.RevokeKey)
		})

		// Ingest/read plane: API keys
		r.Group(func(r chi.Router) {
			r.Use(h.KeyAuthMiddleware)

			r.Post("/events", h.IngestEvent)
			r.Get("/events/recent", h.RecentEvents)
			r.Get("/stats/summary", h.Summary)
			r.Get("/stats/users/{userID}", h.UserStats)
			r.Get("/stats/types", h.CountsByType)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "pagepulse",
	})
}

// RegisterAppRequest represents application registration data
type RegisterAppRequest struct {
	Name string `json:"name" example:"My Blog"`
	URL  string `json:"url" example:"https://blog.example.com"`
}

// RegisterApp registers an application and returns its first API key. The
// plaintext key appears in this response and nowhere else, ever.
func (h *Handler) RegisterApp(w http.ResponseWriter, r *http.Request) {
	var req RegisterAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := validateAppName(req.Name); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateWebURL(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, err := h.tenants.Register(r.Context(), req.Name, req.URL, GetOwnerID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err, "failed to register application")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"app":     reg.Tenant,
		"api_key": reg.Plaintext,
	})
}

// ListApps lists the caller's applications
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.tenants.List(r.Context(), GetOwnerID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err, "failed to list applications")
		return
	}
	if apps == nil {
		apps = []*tenant.Tenant{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

// DescribeKey returns the masked metadata of an application's active key
func (h *Handler) DescribeKey(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	// Ownership gate before touching the key store.
	if _, err := h.tenants.Get(r.Context(), GetOwnerID(r.Context()), appID); err != nil {
		h.respondServiceError(w, r, err, "failed to load application")
		return
	}

	meta, err := h.keys.Describe(r.Context(), appID)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to describe key")
		return
	}

	respondJSON(w, http.StatusOK, meta)
}

// RotateKey replaces an application's active key and returns the new
// plaintext once.
func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	plaintext, key, err := h.keys.Rotate(r.Context(), appID, GetOwnerID(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err, "failed to rotate key")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"api_key":    plaintext,
		"masked_key": apikey.MaskPrefix(key.KeyPrefix),
		"created_at": key.CreatedAt,
	})
}

// RevokeKeyRequest carries the key being revoked
type RevokeKeyRequest struct {
	APIKey string `json:"api_key"`
}

// RevokeKey deactivates the presented key
func (h *Handler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	var req RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !apikey.HasScheme(req.APIKey) {
		respondError(w, http.StatusBadRequest, "api_key does not match the expected format")
		return
	}

	if err := h.keys.Revoke(r.Context(), req.APIKey); err != nil {
		h.respondServiceError(w, r, err, "failed to revoke key")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// IngestEvent captures one event for the authenticated tenant
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload, err := req.validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tc := GetTenant(r.Context())
	stored, err := h.ingestor.Ingest(r.Context(), tc.TenantID, payload, getIPAddress(r))
	if err != nil {
		h.respondServiceError(w, r, err, "failed to ingest event")
		return
	}

	respondJSON(w, http.StatusCreated, stored)
}

// Summary returns the aggregate for the tenant's events
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	eventType := q.Get("event_type")
	if eventType != "" {
		if err := validateEventType(eventType); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	from, to, err := parseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tc := GetTenant(r.Context())
	agg, err := h.queries.Summary(r.Context(), tc.TenantID, eventType, from, to)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to compute summary")
		return
	}
	if agg == nil {
		respondError(w, http.StatusNotFound, "no matching events")
		return
	}

	respondJSON(w, http.StatusOK, agg)
}

// UserStats returns per-user statistics within the tenant
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	tc := GetTenant(r.Context())
	stats, err := h.queries.UserStats(r.Context(), tc.TenantID, userID)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to compute user stats")
		return
	}
	if stats == nil {
		respondError(w, http.StatusNotFound, "no events for user")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// RecentEvents lists the tenant's most recent events
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	tc := GetTenant(r.Context())
	events, err := h.queries.RecentEvents(r.Context(), tc.TenantID, limit)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to list events")
		return
	}
	if events == nil {
		events = []*event.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// CountsByType lists per-type event counts
func (h *Handler) CountsByType(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, err := parseDateRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tc := GetTenant(r.Context())
	counts, err := h.queries.CountsByType(r.Context(), tc.TenantID, from, to)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to count by type")
		return
	}
	if counts == nil {
		counts = []analytics.TypeCount{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"types": counts})
}

// respondServiceError translates core errors into HTTP responses. The typed
// variants map to 4xx; anything unrecognized is an opaque 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	switch {
	case errors.Is(err, tenant.ErrDuplicateRegistration):
		respondError(w, http.StatusConflict, "application already registered with this url")
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "application not found")
	case errors.Is(err, apikey.ErrNotFoundOrUnauthorized):
		respondError(w, http.StatusNotFound, "application not found")
	case errors.Is(err, apikey.ErrNotFoundOrInactive):
		respondError(w, http.StatusNotFound, "api key not found or already inactive")
	case errors.Is(err, apikey.ErrNoActiveKey):
		respondError(w, http.StatusNotFound, "no active api key")
	default:
		slog.ErrorContext(r.Context(), logMsg, logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
