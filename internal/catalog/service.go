package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrNotLister = errors.New("only the lister can modify this food item")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Editor identifies who is changing a listing.
type Editor struct {
	UserID uuid.UUID
	Admin  bool
}

type Service interface {
	CreateFoodItem(ctx context.Context, item *FoodItem) (*FoodItem, error)
	GetFoodItem(ctx context.Context, id uuid.UUID) (*FoodItem, error)
	ListFoodItems(ctx context.Context, filter ListFilter) ([]FoodItem, error)
	UpdateFoodItem(ctx context.Context, editor Editor, item *FoodItem) (*FoodItem, error)
	DeleteFoodItem(ctx context.Context, editor Editor, id uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) CreateFoodItem(ctx context.Context, item *FoodItem) (*FoodItem, error) {
	if item.ListerID == uuid.Nil {
		return nil, errors.New("service: lister id cannot be nil")
	}
	if item.Price < 0 {
		return nil, fmt.Errorf("service: price cannot be negative, got %s", item.Price)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate food item id: %w", err)
	}
	item.ID = id
	now := s.now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.repo.Create(ctx, item); err != nil {
		log.Error().Err(err).Msg("service: failed to create food item in repository")
		return nil, fmt.Errorf("service: failed to create food item: %w", err)
	}

	log.Info().Stringer("food_item_id", item.ID).Stringer("lister_id", item.ListerID).Msg("service: food item listed")
	return item, nil
}

func (s *service) GetFoodItem(ctx context.Context, id uuid.UUID) (*FoodItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFoodItemNotFound) {
			return nil, ErrFoodItemNotFound
		}
		log.Error().Err(err).Stringer("food_item_id", id).Msg("service: failed to fetch food item")
		return nil, fmt.Errorf("service: failed to fetch food item: %w", err)
	}
	return item, nil
}

func (s *service) ListFoodItems(ctx context.Context, filter ListFilter) ([]FoodItem, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list food items")
		return nil, fmt.Errorf("service: failed to list food items: %w", err)
	}
	return items, nil
}

// UpdateFoodItem replaces the editable fields of a listing. Orders keep the
// price they were placed at.
func (s *service) UpdateFoodItem(ctx context.Context, editor Editor, item *FoodItem) (*FoodItem, error) {
	current, err := s.GetFoodItem(ctx, item.ID)
	if err != nil {
		return nil, err
	}
	if !editor.Admin && current.ListerID != editor.UserID {
		log.Warn().Stringer("food_item_id", item.ID).Stringer("user_id", editor.UserID).Msg("service: update by non-lister rejected")
		return nil, ErrNotLister
	}
	if item.Price < 0 {
		return nil, fmt.Errorf("service: price cannot be negative, got %s", item.Price)
	}

	item.ListerID = current.ListerID
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, ErrFoodItemNotFound) {
			return nil, ErrFoodItemNotFound
		}
		log.Error().Err(err).Stringer("food_item_id", item.ID).Msg("service: failed to update food item")
		return nil, fmt.Errorf("service: failed to update food item: %w", err)
	}
	return item, nil
}

// DeleteFoodItem removes a listing. Carts that still reference it show the
// line as unavailable.
func (s *service) DeleteFoodItem(ctx context.Context, editor Editor, id uuid.UUID) error {
	current, err := s.GetFoodItem(ctx, id)
	if err != nil {
		return err
	}
	if !editor.Admin && current.ListerID != editor.UserID {
		log.Warn().Stringer("food_item_id", id).Stringer("user_id", editor.UserID).Msg("service: delete by non-lister rejected")
		return ErrNotLister
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrFoodItemNotFound) {
			return ErrFoodItemNotFound
		}
		log.Error().Err(err).Stringer("food_item_id", id).Msg("service: failed to delete food item")
		return fmt.Errorf("service: failed to delete food item: %w", err)
	}

	log.Info().Stringer("food_item_id", id).Msg("service: food item deleted")
	return nil
}
