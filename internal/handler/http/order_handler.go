package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// CreateOrderRequest accepts the client's view of the order. The server cart
// is authoritative: Items is ignored, TotalAmount is only compared.
type CreateOrderRequest struct {
	UserID          string                `json:"userId,omitempty" validate:"omitempty,uuid"`
	Items           json.RawMessage       `json:"items,omitempty"`
	ShippingDetails order.ShippingDetails `json:"shippingDetails" validate:"-"`
	PaymentMethod   order.PaymentMethod   `json:"paymentMethod" validate:"required,oneof=credit-card paypal cash-on-delivery"`
	TotalAmount     *money.Cents          `json:"totalAmount,omitempty"`
	Status          order.OrderStatus     `json:"status,omitempty" validate:"omitempty,eq=pending"`
}

type UpdateStatusRequest struct {
	Status order.OrderStatus `json:"status" validate:"required"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service, validate: newValidator()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/orders", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", h.handleCreateOrder)
		r.Get("/", h.handleListOrders)
		r.Get("/user", h.handleGetUserOrders)
		r.Get("/{id}", h.handleGetOrder)
		r.Patch("/{id}/status", h.handleUpdateStatus)
	})
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode create order request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	caller := identity(r)
	if requestPayload.UserID != "" && uuid.FromStringOrNil(requestPayload.UserID) != caller.UserID {
		log.Warn().Stringer("user_id", caller.UserID).Str("body_user_id", requestPayload.UserID).Msg("Order owner mismatch")
		respondWithError(w, http.StatusForbidden, CodeForbidden, "Cannot place an order for another user")
		return
	}

	res, err := h.service.Checkout(r.Context(), caller.UserID, order.CheckoutRequest{
		ShippingDetails: requestPayload.ShippingDetails,
		PaymentMethod:   requestPayload.PaymentMethod,
		ExpectedTotal:   requestPayload.TotalAmount,
		IdempotencyKey:  r.Header.Get(IdempotencyKeyHeader),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondWithJSON(w, status, res.Order)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), actorOf(identity(r)))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.GetOrdersByUserID(r.Context(), identity(r).UserID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), actorOf(identity(r)), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload UpdateStatusRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode update status request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), actorOf(identity(r)), id, requestPayload.Status)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}
