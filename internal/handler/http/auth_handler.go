package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *user.User `json:"user"`
}

type AuthHandler struct {
	service  user.Service
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewAuthHandler(service user.Service, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		validate: newValidator(),
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Post("/auth/register", h.handleRegister)
	router.Post("/auth/login", h.handleLogin)
	router.With(requireAuth).Get("/users/me", h.handleMe)
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var requestPayload RegisterRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode register request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	created, err := h.service.Register(r.Context(), &user.User{
		Name:  requestPayload.Name,
		Email: requestPayload.Email,
		Role:  user.RoleUser,
	}, requestPayload.Password)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, created)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode login request")
		respondWithError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if !validateRequest(w, h.validate, requestPayload) {
		return
	}

	u, err := h.service.Authenticate(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, u)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *user.User) {
	token, expiresAt, err := h.tokens.Issue(u.ID, u.Role)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, status, AuthResponse{Token: token, ExpiresAt: expiresAt, User: u})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUserByID(r.Context(), identity(r).UserID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}
