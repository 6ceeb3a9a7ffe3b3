package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
)

type foodItemRepository struct {
	s *Store
}

func (r foodItemRepository) Create(_ context.Context, item *catalog.FoodItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.foodItems[item.ID] = *item
	return nil
}

func (r foodItemRepository) GetByID(_ context.Context, id uuid.UUID) (*catalog.FoodItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.foodItems[id]
	if !ok {
		return nil, catalog.ErrFoodItemNotFound
	}
	return &item, nil
}

func (r foodItemRepository) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.FoodItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	items := make(map[uuid.UUID]catalog.FoodItem, len(ids))
	for _, id := range ids {
		if item, ok := r.s.foodItems[id]; ok {
			items[id] = item
		}
	}
	return items, nil
}

func (r foodItemRepository) List(_ context.Context, filter catalog.ListFilter) ([]catalog.FoodItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q := strings.ToLower(filter.Query)
	items := make([]catalog.FoodItem, 0)
	for _, item := range r.s.foodItems {
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if filter.ListerID != uuid.Nil && item.ListerID != filter.ListerID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(item.Title), q) && !strings.Contains(strings.ToLower(item.Description), q) {
			continue
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})

	if filter.Offset >= len(items) {
		return []catalog.FoodItem{}, nil
	}
	items = items[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(items) {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (r foodItemRepository) Update(_ context.Context, item *catalog.FoodItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.foodItems[item.ID]; !ok {
		return catalog.ErrFoodItemNotFound
	}
	r.s.foodItems[item.ID] = *item
	return nil
}

func (r foodItemRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.foodItems[id]; !ok {
		return catalog.ErrFoodItemNotFound
	}
	delete(r.s.foodItems, id)
	return nil
}
