package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

type CheckoutRequest struct {
	ShippingDetails ShippingDetails
	PaymentMethod   PaymentMethod
	// ExpectedTotal is the total the client rendered. When set, checkout fails
	// with TotalMismatchError if current prices give a different total.
	ExpectedTotal  *money.Cents
	IdempotencyKey string
}

type CheckoutResult struct {
	Order *Order
	// Replayed is true when the order was created by an earlier request
	// carrying the same idempotency key.
	Replayed bool
}

// Deduplicator remembers which order an idempotency key produced.
//
// Begin claims key. acquired is false when the key was seen before: orderID
// is then the order it produced, or uuid.Nil while the first request is
// still running.
type Deduplicator interface {
	Begin(ctx context.Context, key string) (orderID uuid.UUID, acquired bool, err error)
	Complete(ctx context.Context, key string, orderID uuid.UUID) error
	Abort(ctx context.Context, key string) error
}

type Service interface {
	Checkout(ctx context.Context, ownerID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, actor Actor) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, actor Actor, orderID uuid.UUID, newStatus OrderStatus) (*Order, error)
}

type service struct {
	orderRepo Repository
	dedup     Deduplicator
	now       func() time.Time
}

// NewService builds the order service. dedup may be nil, in which case
// idempotency keys are ignored.
func NewService(orderRepo Repository, dedup Deduplicator) Service {
	return &service{
		orderRepo: orderRepo,
		dedup:     dedup,
		now:       time.Now,
	}
}

func (s *service) Checkout(ctx context.Context, ownerID uuid.UUID, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	key := ""
	if s.dedup != nil && req.IdempotencyKey != "" {
		key = ownerID.String() + ":" + req.IdempotencyKey
		existing, acquired, err := s.dedup.Begin(ctx, key)
		if err != nil {
			log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: idempotency store unavailable")
			return nil, fmt.Errorf("service: failed to claim idempotency key: %w", err)
		}
		if !acquired {
			if existing == uuid.Nil {
				log.Warn().Stringer("user_id", ownerID).Msg("service: checkout with the same key is still running")
				return nil, ErrCheckoutInProgress
			}
			o, err := s.orderRepo.GetOrderByID(ctx, existing)
			if err != nil {
				log.Error().Err(err).Stringer("order_id", existing).Msg("service: failed to load replayed order")
				return nil, fmt.Errorf("service: failed to load replayed order: %w", err)
			}
			log.Info().Stringer("order_id", o.ID).Stringer("user_id", ownerID).Msg("service: checkout replayed")
			return &CheckoutResult{Order: o, Replayed: true}, nil
		}
	}

	now := s.now().UTC()
	created, err := s.orderRepo.Checkout(ctx, ownerID, func(snap CartSnapshot) (*Order, error) {
		return BuildOrder(snap, req, now)
	})
	if err != nil {
		if key != "" {
			if abortErr := s.dedup.Abort(ctx, key); abortErr != nil {
				log.Error().Err(abortErr).Stringer("user_id", ownerID).Msg("service: failed to release idempotency key")
			}
		}
		return nil, s.checkoutError(ownerID, err)
	}

	if key != "" {
		if err := s.dedup.Complete(ctx, key, created.ID); err != nil {
			// The order is committed; a lost key only costs the replay.
			log.Error().Err(err).Stringer("order_id", created.ID).Msg("service: failed to record idempotency key")
		}
	}

	log.Info().
		Stringer("order_id", created.ID).
		Stringer("user_id", ownerID).
		Stringer("total", created.TotalAmount).
		Int("items", len(created.OrderItems)).
		Msg("service: order created")
	return &CheckoutResult{Order: created}, nil
}

func (s *service) checkoutError(ownerID uuid.UUID, err error) error {
	var (
		unavailable *UnavailableItemsError
		mismatch    *TotalMismatchError
		verr        *ValidationError
	)
	switch {
	case errors.Is(err, ErrEmptyCart):
		log.Warn().Stringer("user_id", ownerID).Msg("service: checkout of empty cart")
		return ErrEmptyCart
	case errors.As(err, &unavailable), errors.As(err, &mismatch), errors.As(err, &verr):
		log.Warn().Err(err).Stringer("user_id", ownerID).Msg("service: checkout rejected")
		return err
	case errors.Is(err, ErrCartChanged):
		log.Warn().Stringer("user_id", ownerID).Msg("service: cart changed during checkout")
		return ErrCartChanged
	}
	log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to check out cart")
	return fmt.Errorf("service: failed to check out cart: %w", err)
}

func validateCheckout(req CheckoutRequest) error {
	fields := map[string]string{}

	if err := req.ShippingDetails.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if !req.PaymentMethod.Valid() {
		fields["paymentMethod"] = "must be one of credit-card, paypal, cash-on-delivery"
	}
	if req.ExpectedTotal != nil && *req.ExpectedTotal < 0 {
		fields["totalAmount"] = "cannot be negative"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// BuildOrder prices a cart snapshot into a pending order. It has no side
// effects; the caller persists the result.
func BuildOrder(snap CartSnapshot, req CheckoutRequest, now time.Time) (*Order, error) {
	if len(snap.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	var unavailable []uuid.UUID
	for _, l := range snap.Lines {
		if l.Item == nil || !l.Item.IsAvailable {
			unavailable = append(unavailable, l.FoodItemID)
		}
	}
	if len(unavailable) > 0 {
		return nil, &UnavailableItemsError{FoodItemIDs: unavailable}
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	o := &Order{
		ID:              orderID,
		UserID:          snap.OwnerID,
		OrderItems:      make([]OrderItem, 0, len(snap.Lines)),
		ShippingDetails: req.ShippingDetails,
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		OrderDate:       now,
		UpdatedAt:       now,
	}

	for _, l := range snap.Lines {
		if l.Item.ListerID == snap.OwnerID {
			return nil, &ValidationError{Fields: map[string]string{
				"items": fmt.Sprintf("cannot order your own listing %s", l.FoodItemID),
			}}
		}
		if l.Quantity < 1 {
			return nil, fmt.Errorf("service: cart line %s has quantity %d", l.FoodItemID, l.Quantity)
		}

		itemID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order item id: %w", err)
		}
		item := OrderItem{
			ID:         itemID,
			FoodItemID: l.FoodItemID,
			Title:      l.Item.Title,
			Producer:   l.Item.Producer,
			UnitPrice:  l.Item.Price,
			Quantity:   l.Quantity,
		}
		sub, err := item.Subtotal()
		if err != nil {
			return nil, err
		}
		if o.TotalAmount, err = o.TotalAmount.Add(sub); err != nil {
			return nil, err
		}
		o.OrderItems = append(o.OrderItems, item)
	}

	if req.ExpectedTotal != nil && *req.ExpectedTotal != o.TotalAmount {
		return nil, &TotalMismatchError{Expected: *req.ExpectedTotal, Actual: o.TotalAmount}
	}

	return o, nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if !actor.Admin && o.UserID != actor.UserID {
		log.Warn().Stringer("order_id", id).Stringer("user_id", actor.UserID).Msg("service: order read by non-owner rejected")
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor) ([]Order, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	orders, err := s.orderRepo.ListOrders(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, actor Actor, orderID uuid.UUID, newStatus OrderStatus) (*Order, error) {
	if !newStatus.Valid() {
		return nil, &ValidationError{Fields: map[string]string{
			"status": "must be one of pending, processing, shipped, delivered, cancelled",
		}}
	}

	current, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return nil, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if err := CheckTransition(actor, current.UserID, current.Status, newStatus); err != nil {
		log.Warn().
			Err(err).
			Stringer("order_id", orderID).
			Stringer("user_id", actor.UserID).
			Stringer("current_status", current.Status).
			Stringer("new_status", newStatus).
			Msg("service: status change rejected")
		return nil, err
	}

	updated, err := s.orderRepo.UpdateOrderStatus(ctx, orderID, current.Status, newStatus, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", current.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")
	return updated, nil
}
