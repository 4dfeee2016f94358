package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sondv/storefront/internal/cache"
	"github.com/sondv/storefront/internal/entity"
	"github.com/sondv/storefront/internal/service"
)

// idempotencyHeader carries the client-chosen key that makes order
// placement safe to retry.
const idempotencyHeader = "Idempotency-Key"

// idempotencyTTL bounds how long a placement result is replayed for
// the same key.
const idempotencyTTL = 24 * time.Hour

// Handler handles HTTP requests for the storefront API.
type Handler struct {
	orderSvc   *service.OrderService
	pricingSvc *service.PricingService
	ledger     *service.InventoryLedger
	idem       cache.Cache
}

func NewHandler(orderSvc *service.OrderService, pricingSvc *service.PricingService, ledger *service.InventoryLedger, idem cache.Cache) *Handler {
	return &Handler{
		orderSvc:   orderSvc,
		pricingSvc: pricingSvc,
		ledger:     ledger,
		idem:       idem,
	}
}

// NewRouter wires all routes. Authentication happens upstream; the
// customer identity arrives in the X-Customer-ID header.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.handleGetProducts)

		r.Post("/orders", h.handleCreateOrder)
		r.Get("/orders", h.handleGetOrders)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Put("/orders/{id}/status", h.handleUpdateStatus)
		r.Post("/orders/{id}/shipment", h.handleAttachShipment)

		r.Get("/inventory/report", h.handleInventoryReport)
		r.Get("/inventory/{id}/history", h.handleInventoryHistory)
		r.Post("/inventory/{id}/adjust", h.handleAdjustStock)

		r.Post("/discounts", h.handleApplyDiscount)
	})

	return r
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.orderSvc.GetProducts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID := r.Header.Get("X-Customer-ID")
	if customerID == "" {
		writeError(w, http.StatusUnauthorized, "missing_identity", "X-Customer-ID header required")
		return
	}

	idemKey := r.Header.Get(idempotencyHeader)
	if idemKey != "" && h.idem != nil {
		cacheKey := h.idem.GenerateKey("place_order", idemKey)
		if cached, err := h.idem.Get(r.Context(), cacheKey); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orderSvc.PlaceOrder(r.Context(), customerID, req.Lines, req.Shipping)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if idemKey != "" && h.idem != nil {
		if body, err := json.Marshal(order); err == nil {
			cacheKey := h.idem.GenerateKey("place_order", idemKey)
			if err := h.idem.Set(r.Context(), cacheKey, string(body), idempotencyTTL); err != nil {
				slog.Error("Failed to cache placement result", "key", idemKey, "err", err)
			}
		}
	}

	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	if customerID := r.URL.Query().Get("customer"); customerID != "" {
		orders, err := h.orderSvc.GetOrdersByCustomer(r.Context(), customerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	if status := r.URL.Query().Get("status"); status != "" {
		orders, err := h.orderSvc.GetOrdersByStatus(r.Context(), entity.OrderStatus(status))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	writeError(w, http.StatusBadRequest, "missing_filter", "customer or status query parameter required")
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	actorID := r.Header.Get("X-Customer-ID")
	order, err := h.orderSvc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), entity.OrderStatus(req.Status), actorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleAttachShipment(w http.ResponseWriter, r *http.Request) {
	var req attachShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orderSvc.AttachShipment(r.Context(), chi.URLParam(r, "id"), req.Carrier, req.TrackingNumber, req.EstimatedDelivery)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Report(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleInventoryHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	actorID := r.Header.Get("X-Customer-ID")
	if actorID == "" {
		writeError(w, http.StatusUnauthorized, "missing_identity", "X-Customer-ID header required")
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = service.ReasonManualCorrection
	}

	if err := h.ledger.Adjust(r.Context(), chi.URLParam(r, "id"), req.Delta, reason, actorID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	err := h.pricingSvc.ApplyDiscount(r.Context(), req.ProductIDs, req.Percentage, req.FixedAmount, req.Start, req.End)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps the service error taxonomy onto HTTP codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var oos *entity.OutOfStockError
	switch {
	case errors.As(err, &oos):
		writeError(w, http.StatusConflict, "out_of_stock", oos.Error())
	case errors.Is(err, entity.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, entity.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, entity.ErrUnknownProduct):
		writeError(w, http.StatusNotFound, "unknown_product", err.Error())
	case errors.Is(err, entity.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, entity.ErrInvalidStatusTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_status_transition", err.Error())
	case errors.Is(err, entity.ErrShipmentExists):
		writeError(w, http.StatusConflict, "shipment_exists", err.Error())
	default:
		slog.Error("Internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

// EnableCORS is a middleware to allow the storefront frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Customer-ID, Idempotency-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
