package memory

import (
	"context"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
)

type orderRepository struct {
	s *Store
}

func copyOrder(o order.Order) order.Order {
	o.OrderItems = append([]order.OrderItem(nil), o.OrderItems...)
	return o
}

// Checkout holds the store lock for the whole read-build-write sequence, so a
// concurrent checkout of the same cart sees it already emptied.
func (r orderRepository) Checkout(_ context.Context, ownerID uuid.UUID, build order.BuildFunc) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.carts[ownerID]
	if !ok || len(c.Lines) == 0 {
		return nil, order.ErrEmptyCart
	}

	snap := order.CartSnapshot{CartID: c.ID, OwnerID: ownerID, Version: c.Version}
	for _, l := range c.Lines {
		line := order.SnapshotLine{FoodItemID: l.FoodItemID, Quantity: l.Quantity}
		if item, ok := r.s.foodItems[l.FoodItemID]; ok {
			line.Item = &item
		}
		snap.Lines = append(snap.Lines, line)
	}

	o, err := build(snap)
	if err != nil {
		return nil, err
	}

	r.s.orders[o.ID] = copyOrder(*o)
	c.Lines = c.Lines[:0]
	r.s.touchLocked(c)
	return o, nil
}

func (r orderRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (r orderRepository) GetOrdersByUserID(_ context.Context, userID uuid.UUID) ([]order.Order, error) {
	return r.list(func(o order.Order) bool { return o.UserID == userID }), nil
}

func (r orderRepository) ListOrders(_ context.Context) ([]order.Order, error) {
	return r.list(func(order.Order) bool { return true }), nil
}

func (r orderRepository) list(keep func(order.Order) bool) []order.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orders := make([]order.Order, 0)
	for _, o := range r.s.orders {
		if keep(o) {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].OrderDate.Equal(orders[j].OrderDate) {
			return orders[i].OrderDate.After(orders[j].OrderDate)
		}
		return orders[i].ID.String() < orders[j].ID.String()
	})
	return orders
}

func (r orderRepository) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to order.OrderStatus, at time.Time) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	r.s.orders[orderID] = o

	o = copyOrder(o)
	return &o, nil
}
