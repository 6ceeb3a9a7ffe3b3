package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/auth"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeEmptyCart          = "EMPTY_CART"
	CodeItemUnavailable    = "ITEM_UNAVAILABLE"
	CodeTotalMismatch      = "TOTAL_MISMATCH"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeConflict           = "CONFLICT"
	CodeCheckoutInProgress = "CHECKOUT_IN_PROGRESS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeInternal           = "INTERNAL"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func respondWithValidation(w http.ResponseWriter, details map[string]string) {
	respondWithJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Code:    CodeValidation,
		Details: details,
	})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response","code":"INTERNAL"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// mapError translates a service error into status, reason code, message and
// optional field details. Unknown errors become a generic 500.
func mapError(err error) (int, ErrorResponse) {
	var (
		verr        *order.ValidationError
		unavailable *order.UnavailableItemsError
		mismatch    *order.TotalMismatchError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: CodeValidation, Details: verr.Fields}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    CodeValidation,
			Details: map[string]string{"quantity": fmt.Sprintf("must be between 1 and %d", cart.MaxQuantity)},
		}
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusBadRequest, ErrorResponse{Error: "Cart is empty", Code: CodeEmptyCart}
	case errors.As(err, &unavailable):
		ids := make([]string, 0, len(unavailable.FoodItemIDs))
		for _, id := range unavailable.FoodItemIDs {
			ids = append(ids, id.String())
		}
		return http.StatusConflict, ErrorResponse{
			Error:   "Some items are no longer available",
			Code:    CodeItemUnavailable,
			Details: map[string]string{"itemIds": strings.Join(ids, ",")},
		}
	case errors.As(err, &mismatch):
		return http.StatusConflict, ErrorResponse{
			Error: "Prices changed since the cart was shown",
			Code:  CodeTotalMismatch,
			Details: map[string]string{
				"expected": mismatch.Expected.String(),
				"actual":   mismatch.Actual.String(),
			},
		}
	case errors.Is(err, cart.ErrCartNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Cart not found", Code: CodeNotFound}
	case errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Item not found in cart", Code: CodeNotFound}
	case errors.Is(err, catalog.ErrFoodItemNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Food item not found", Code: CodeNotFound}
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "Order not found", Code: CodeNotFound}
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "User not found", Code: CodeNotFound}
	case errors.Is(err, order.ErrForbidden), errors.Is(err, catalog.ErrNotLister):
		return http.StatusForbidden, ErrorResponse{Error: "Forbidden", Code: CodeForbidden}
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: "Invalid order status transition", Code: CodeInvalidTransition}
	case errors.Is(err, order.ErrStatusConflict), errors.Is(err, order.ErrCartChanged):
		return http.StatusConflict, ErrorResponse{Error: "Resource was changed concurrently, retry", Code: CodeConflict}
	case errors.Is(err, order.ErrCheckoutInProgress):
		return http.StatusConflict, ErrorResponse{Error: "Checkout is already in progress", Code: CodeCheckoutInProgress}
	case errors.Is(err, user.ErrInvalidCredentials):
		return http.StatusUnauthorized, ErrorResponse{Error: "Invalid email or password", Code: CodeInvalidCredentials}
	case errors.Is(err, user.ErrEmailExists):
		return http.StatusConflict, ErrorResponse{Error: "Email already exists", Code: CodeEmailExists}
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, ErrorResponse{Error: "Token has expired", Code: CodeTokenExpired}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrorResponse{Error: "Invalid token", Code: CodeUnauthenticated}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", Code: CodeInternal}
	}
}

func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		log.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request rejected")
	}
	respondWithJSON(w, status, body)
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonTagName)
	return v
}

func jsonTagName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// validateRequest runs struct validation and reports whether the request may
// proceed; on failure the response has already been written.
func validateRequest(w http.ResponseWriter, v *validator.Validate, payload interface{}) bool {
	err := v.Struct(payload)
	if err == nil {
		return true
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithValidation(w, formatValidationErrors(validationErrors))
		return false
	}

	log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, CodeInternal, "Internal validation error")
	return false
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fieldPath(fe)] = validationMessage(fe)
	}
	return details
}

// fieldPath drops the request struct name from the namespace, turning
// "AddToCartRequest.itemId" into "itemId".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid id"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
