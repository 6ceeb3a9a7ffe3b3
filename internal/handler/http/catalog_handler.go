package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

type FoodItemRequest struct {
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=2000"`
	Producer    string      `json:"producer" validate:"required,max=200"`
	Category    string      `json:"category" validate:"required,max=100"`
	Price       money.Cents `json:"price" validate:"min=0"`
	ImageURL    string      `json:"imageUrl" validate:"omitempty,url"`
	IsAvailable *bool       `json:"isAvailable,omitempty"`
}

func (req FoodItemRequest) toFoodItem() *catalog.FoodItem {
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	return &catalog.FoodItem{
		Title:       req.Title,
		Description: req.Description,
		Producer:    req.Producer,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: available,
	}
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{service: service, validate: newValidator()}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Get("/food-items", h.handleList)
	router.Get("/food-items/{id}", h.handleGet)
	router.With(requireAuth).Post("/food-items", h.handleCreate)
	router.With(requireAuth).Put("/food-items/{id}", h.handleUpdate)
	router.With(requireAuth).Delete("/food-items/{id}", h.handleDelete)
}

func (h *CatalogHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ListFilter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	}

	details := map[string]string{}
	if v := q.Get("lister"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			details["lister"] = "must be a valid id"
		}
		filter.ListerID = id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details["limit"] = "must be a number"
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details["offset"] = "must be a number"
		}
		filter.Offset = n
	}
	if len(details) > 0 {
		respondWithValidation(w, details)
		return
	}

	items, err := h.service.ListFoodItems(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	item, err := h.service.GetFoodItem(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *CatalogHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var requestPayload FoodItemRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode food item request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	item := requestPayload.toFoodItem()
	item.ListerID = identity(r).UserID

	created, err := h.service.CreateFoodItem(r.Context(), item)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var requestPayload FoodItemRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode food item request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	item := requestPayload.toFoodItem()
	item.ID = id

	updated, err := h.service.UpdateFoodItem(r.Context(), editorOf(identity(r)), item)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteFoodItem(r.Context(), editorOf(identity(r)), id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.FromString(raw)
	if err != nil {
		log.Warn().Err(err).Str(name, raw).Msg("Failed to parse id parameter from URL")
		respondWithValidation(w, map[string]string{name: "must be a valid id"})
		return uuid.Nil, false
	}
	return id, true
}
