// handler.go provides HTTP REST API handlers for the event query service.
//
// This inbound adapter exposes the read side over HTTP:
//   - GET /events: events filtered by contract and event name
//   - GET /events/by-return-value: events whose return value matches
//   - GET /kitties/{kittyId}/history: every event referencing a kitty
//   - GET /health: backend ping for liveness/readiness probes
package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/archon-research/event-store/internal/domain/entity"
	"github.com/archon-research/event-store/internal/ports/inbound"
	"github.com/archon-research/event-store/internal/ports/outbound"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	service inbound.EventQueryService
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.EventQueryService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "http-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /events", h.GetEvents)
	mux.HandleFunc("GET /events/by-return-value", h.FindByReturnValue)
	mux.HandleFunc("GET /kitties/{kittyId}/history", h.GetKittyHistory)
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "service unhealthy")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetEvents handles GET /events?contractName=&eventName=&limit=&order=.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := parseOrder(q.Get("order"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.service.GetEvents(r.Context(), outbound.GetEventsArgs{
		Limit:        limit,
		ContractName: q.Get("contractName"),
		EventName:    q.Get("eventName"),
		Order:        order,
	})
	if err != nil {
		h.logger.Error("failed to get events", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	h.respondRecords(w, records)
}

// FindByReturnValue handles GET /events/by-return-value?key=&value=.
func (h *Handler) FindByReturnValue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		h.respondError(w, http.StatusBadRequest, "key is required")
		return
	}
	if !q.Has("value") {
		h.respondError(w, http.StatusBadRequest, "value is required")
		return
	}

	records, err := h.service.FindByReturnValues(r.Context(), outbound.FindByReturnValuesArgs{
		Key:   key,
		Value: q.Get("value"),
	})
	if err != nil {
		h.logger.Error("failed to find events by return value", "key", key, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to find events")
		return
	}
	h.respondRecords(w, records)
}

// GetKittyHistory handles GET /kitties/{kittyId}/history.
func (h *Handler) GetKittyHistory(w http.ResponseWriter, r *http.Request) {
	kittyID := r.PathValue("kittyId")
	if _, err := strconv.ParseUint(kittyID, 10, 64); err != nil {
		h.respondError(w, http.StatusBadRequest, "kittyId must be a non-negative integer")
		return
	}

	records, err := h.service.GetKittyHistory(r.Context(), kittyID)
	if err != nil {
		h.logger.Error("failed to get kitty history", "kittyId", kittyID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get kitty history")
		return
	}
	h.respondRecords(w, records)
}

func parseLimit(raw string) (uint64, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func parseOrder(raw string) (outbound.SortOrder, error) {
	switch raw {
	case "", "1", "asc":
		return outbound.Ascending, nil
	case "-1", "desc":
		return outbound.Descending, nil
	default:
		return 0, fmt.Errorf("order must be 1 or -1")
	}
}

// respondRecords writes records as a JSON array, never null.
func (h *Handler) respondRecords(w http.ResponseWriter, records []entity.EventRecord) {
	if records == nil {
		records = []entity.EventRecord{}
	}
	h.respondJSON(w, http.StatusOK, records)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
