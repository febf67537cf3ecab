package order

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

// Handler exposes the order service over HTTP
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.withLogging(h.CreateOrder))
	mux.HandleFunc("POST /orders/{id}/items", h.withLogging(h.AddItem))
	mux.HandleFunc("POST /orders/{id}/submit", h.withLogging(h.SubmitOrder))
	mux.HandleFunc("GET /orders/unsynced", h.withLogging(h.ListUnsynced))
	mux.HandleFunc("GET /orders/{id}", h.withLogging(h.GetOrder))
	mux.HandleFunc("GET /health", h.HealthCheck)
	return mux
}

// CreateOrder handles POST /orders
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.service.CreateOrder(ctx, req, requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusCreated, o)
}

// AddItem handles POST /orders/{id}/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID := r.PathValue("id")

	var spec models.ItemSpec
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&spec); err != nil {
		h.logger.Error("validation_failed", "Failed to parse request body", requestID, err, nil)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON format", requestID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.service.AddItem(ctx, orderID, spec, requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, o)
}

// SubmitOrder handles POST /orders/{id}/submit
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)
	orderID := r.PathValue("id")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	o, err := h.service.SubmitOrder(ctx, orderID, requestID)
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, o)
}

// GetOrder handles GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	o, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}

	h.writeJSON(w, http.StatusOK, o)
}

// ListUnsynced handles GET /orders/unsynced
func (h *Handler) ListUnsynced(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	orders, err := h.service.ListUnsynced(r.Context())
	if err != nil {
		h.writeServiceError(w, err, requestID)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "order-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, requestID string) {
	var verr models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusBadRequest, verr.Error(), requestID)
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Order not found", requestID)
	case errors.Is(err, ErrOrderNotEditable):
		h.writeError(w, http.StatusConflict, err.Error(), requestID)
	case errors.Is(err, models.ErrVersionConflict):
		h.writeError(w, http.StatusConflict, "Order was modified concurrently", requestID)
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
