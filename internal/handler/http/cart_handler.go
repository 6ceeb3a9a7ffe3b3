package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
)

type AddToCartRequest struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity *int   `json:"quantity,omitempty" validate:"omitempty,min=1,max=1000"`
}

type UpdateCartRequest struct {
	ItemID   string `json:"itemId" validate:"required,uuid"`
	Quantity *int   `json:"quantity" validate:"required,min=1,max=1000"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{service: service, validate: newValidator()}
}

func (h *CartHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/cart", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", h.handleGetCart)
		r.Post("/add", h.handleAddItem)
		r.Put("/update", h.handleUpdateItem)
		r.Delete("/remove/{itemId}", h.handleRemoveItem)
		r.Delete("/clear", h.handleClearCart)
	})
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCart(r.Context(), identity(r).UserID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload AddToCartRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode add to cart request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	quantity := 1
	if requestPayload.Quantity != nil {
		quantity = *requestPayload.Quantity
	}

	view, err := h.service.AddItem(r.Context(), identity(r).UserID, uuid.FromStringOrNil(requestPayload.ItemID), quantity)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, view)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var requestPayload UpdateCartRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode update cart request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	view, err := h.service.UpdateItemQuantity(r.Context(), identity(r).UserID, uuid.FromStringOrNil(requestPayload.ItemID), *requestPayload.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := uuidParam(w, r, "itemId")
	if !ok {
		return
	}

	view, err := h.service.RemoveItem(r.Context(), identity(r).UserID, itemID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCart(r.Context(), identity(r).UserID); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, MessageResponse{Message: "Cart cleared"})
}
