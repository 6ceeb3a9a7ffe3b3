package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
)

// MaxQuantity bounds a single cart line, merged quantities included.
const MaxQuantity = 1000

var ErrInvalidQuantity = errors.New("quantity must be between 1 and 1000")

func validQuantity(q int) bool {
	return q >= 1 && q <= MaxQuantity
}

// ItemLookup resolves catalog entries for display.
type ItemLookup interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.FoodItem, error)
}

type Service interface {
	GetCart(ctx context.Context, ownerID uuid.UUID) (*View, error)
	// AddItem merges: quantity is added to any existing line for the item.
	AddItem(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*View, error)
	// UpdateItemQuantity overwrites the quantity of an existing line.
	UpdateItemQuantity(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, ownerID, foodItemID uuid.UUID) (*View, error)
	ClearCart(ctx context.Context, ownerID uuid.UUID) error
}

type service struct {
	repo  Repository
	items ItemLookup
}

func NewService(repo Repository, items ItemLookup) Service {
	return &service{repo: repo, items: items}
}

func (s *service) GetCart(ctx context.Context, ownerID uuid.UUID) (*View, error) {
	c, err := s.repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to get or create cart")
		return nil, fmt.Errorf("service: failed to get cart: %w", err)
	}
	return s.view(ctx, c)
}

func (s *service) AddItem(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*View, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	c, err := s.repo.AddLine(ctx, ownerID, foodItemID, quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrFoodItemNotFound) {
			log.Warn().Stringer("user_id", ownerID).Stringer("food_item_id", foodItemID).Msg("service: add to cart of unknown food item")
			return nil, catalog.ErrFoodItemNotFound
		}
		if errors.Is(err, ErrInvalidQuantity) {
			log.Warn().Stringer("user_id", ownerID).Stringer("food_item_id", foodItemID).Int("quantity", quantity).Msg("service: merged cart line would exceed the limit")
			return nil, ErrInvalidQuantity
		}
		log.Error().Err(err).Stringer("user_id", ownerID).Stringer("food_item_id", foodItemID).Msg("service: failed to add item to cart")
		return nil, fmt.Errorf("service: failed to add item to cart: %w", err)
	}

	log.Debug().Stringer("user_id", ownerID).Stringer("food_item_id", foodItemID).Int("quantity", quantity).Msg("service: item added to cart")
	return s.view(ctx, c)
}

func (s *service) UpdateItemQuantity(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*View, error) {
	if !validQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	c, err := s.repo.SetLineQuantity(ctx, ownerID, foodItemID, quantity)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) || errors.Is(err, ErrLineNotFound) {
			log.Warn().Err(err).Stringer("user_id", ownerID).Stringer("food_item_id", foodItemID).Msg("service: cannot update cart line")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to update cart line")
		return nil, fmt.Errorf("service: failed to update cart line: %w", err)
	}

	return s.view(ctx, c)
}

func (s *service) RemoveItem(ctx context.Context, ownerID, foodItemID uuid.UUID) (*View, error) {
	c, err := s.repo.RemoveLine(ctx, ownerID, foodItemID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, ErrCartNotFound
		}
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to remove cart line")
		return nil, fmt.Errorf("service: failed to remove cart line: %w", err)
	}

	return s.view(ctx, c)
}

func (s *service) ClearCart(ctx context.Context, ownerID uuid.UUID) error {
	if err := s.repo.Clear(ctx, ownerID); err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return ErrCartNotFound
		}
		log.Error().Err(err).Stringer("user_id", ownerID).Msg("service: failed to clear cart")
		return fmt.Errorf("service: failed to clear cart: %w", err)
	}
	return nil
}

func (s *service) view(ctx context.Context, c *Cart) (*View, error) {
	items, err := s.items.GetByIDs(ctx, c.FoodItemIDs())
	if err != nil {
		log.Error().Err(err).Stringer("cart_id", c.ID).Msg("service: failed to resolve cart items")
		return nil, fmt.Errorf("service: failed to resolve cart items: %w", err)
	}

	v, err := Resolve(c, items)
	if err != nil {
		return nil, fmt.Errorf("service: failed to price cart: %w", err)
	}
	return v, nil
}
