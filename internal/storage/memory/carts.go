package memory

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
)

type cartRepository struct {
	s *Store
}

func copyCart(c *cart.Cart) *cart.Cart {
	out := *c
	out.Lines = append([]cart.Line(nil), c.Lines...)
	if out.Lines == nil {
		out.Lines = []cart.Line{}
	}
	return &out
}

// createLocked returns the owner's cart, creating it when missing.
func (s *Store) createLocked(ownerID uuid.UUID) (*cart.Cart, error) {
	if c, ok := s.carts[ownerID]; ok {
		return c, nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("memory: failed to generate cart id: %w", err)
	}
	now := s.now().UTC()
	c := &cart.Cart{ID: id, OwnerID: ownerID, Lines: []cart.Line{}, Version: 1, CreatedAt: now, UpdatedAt: now}
	s.carts[ownerID] = c
	return c, nil
}

func (s *Store) touchLocked(c *cart.Cart) {
	c.Version++
	c.UpdatedAt = s.now().UTC()
}

func (r cartRepository) Get(_ context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.carts[ownerID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return copyCart(c), nil
}

func (r cartRepository) GetOrCreate(_ context.Context, ownerID uuid.UUID) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, err := r.s.createLocked(ownerID)
	if err != nil {
		return nil, err
	}
	return copyCart(c), nil
}

func (r cartRepository) AddLine(_ context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.foodItems[foodItemID]; !ok {
		return nil, catalog.ErrFoodItemNotFound
	}
	c, err := r.s.createLocked(ownerID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range c.Lines {
		if c.Lines[i].FoodItemID == foodItemID {
			if quantity > cart.MaxQuantity-c.Lines[i].Quantity {
				return nil, cart.ErrInvalidQuantity
			}
			c.Lines[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		c.Lines = append(c.Lines, cart.Line{FoodItemID: foodItemID, Quantity: quantity, AddedAt: r.s.now().UTC()})
	}
	r.s.touchLocked(c)
	return copyCart(c), nil
}

func (r cartRepository) SetLineQuantity(_ context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.carts[ownerID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].FoodItemID == foodItemID {
			c.Lines[i].Quantity = quantity
			r.s.touchLocked(c)
			return copyCart(c), nil
		}
	}
	return nil, cart.ErrLineNotFound
}

func (r cartRepository) RemoveLine(_ context.Context, ownerID, foodItemID uuid.UUID) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.carts[ownerID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	for i := range c.Lines {
		if c.Lines[i].FoodItemID == foodItemID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			r.s.touchLocked(c)
			break
		}
	}
	return copyCart(c), nil
}

func (r cartRepository) Clear(_ context.Context, ownerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.carts[ownerID]
	if !ok {
		return cart.ErrCartNotFound
	}
	c.Lines = []cart.Line{}
	r.s.touchLocked(c)
	return nil
}
