package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"restaurant-pos/internal/logger"
	"restaurant-pos/internal/models"
)

// Handler exposes the kitchen service over HTTP
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new kitchen handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets/active", h.withLogging(h.ListActive))
	mux.HandleFunc("GET /tickets/{id}", h.withLogging(h.GetTicket))
	mux.HandleFunc("POST /tickets/{id}/start", h.withLogging(h.StartTicket))
	mux.HandleFunc("POST /tickets/{id}/items/{itemId}/ready", h.withLogging(h.MarkItemReady))
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

// ListActive handles GET /tickets/active
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	tickets, err := h.service.ListActive(r.Context())
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}
	if tickets == nil {
		tickets = []*models.KitchenTicket{}
	}

	h.writeJSON(w, http.StatusOK, tickets)
}

// GetTicket handles GET /tickets/{id}
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	t, err := h.service.GetTicket(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, t)
}

// StartTicket handles POST /tickets/{id}/start
func (h *Handler) StartTicket(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	t, err := h.service.StartTicket(ctx, r.PathValue("id"), requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, t)
}

// MarkItemReady handles POST /tickets/{id}/items/{itemId}/ready
func (h *Handler) MarkItemReady(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	t, err := h.service.MarkItemReady(ctx, r.PathValue("id"), r.PathValue("itemId"), requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, t)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "kitchen-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Ticket not found", requestID)
	case errors.Is(err, ErrTicketNotStartable):
		h.writeError(w, http.StatusConflict, err.Error(), requestID)
	default:
		h.logger.Error("request_failed", "Unhandled service error", requestID, err, nil)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", requestID)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":      message,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"request_id": requestID,
	})
}

type requestIDKey struct{}

func requestIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return logger.GenerateRequestID()
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := logger.GenerateRequestID()
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		h.logger.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
