package order

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrForbidden          = errors.New("not allowed to access this order")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrStatusConflict     = errors.New("order status was changed concurrently")
	ErrCartChanged        = errors.New("cart changed during checkout")
	ErrCheckoutInProgress = errors.New("checkout with this idempotency key is in progress")
	ErrItemUnavailable    = errors.New("some items are no longer available")
	ErrTotalMismatch      = errors.New("order total does not match current prices")
)

// ValidationError carries field-level messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type UnavailableItemsError struct {
	FoodItemIDs []uuid.UUID
}

func (e *UnavailableItemsError) Error() string {
	ids := make([]string, 0, len(e.FoodItemIDs))
	for _, id := range e.FoodItemIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("%s: %s", ErrItemUnavailable, strings.Join(ids, ", "))
}

func (e *UnavailableItemsError) Unwrap() error { return ErrItemUnavailable }

type TotalMismatchError struct {
	Expected money.Cents
	Actual   money.Cents
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, current %s", ErrTotalMismatch, e.Expected, e.Actual)
}

func (e *TotalMismatchError) Unwrap() error { return ErrTotalMismatch }
