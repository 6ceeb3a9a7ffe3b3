// Package memory keeps every aggregate in process memory behind one mutex.
// It backs STORAGE_DRIVER=memory and service-level tests; outbox events are
// not recorded.
package memory

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/cart"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/order"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

type Store struct {
	mu sync.Mutex

	users     map[uuid.UUID]user.User
	emails    map[string]uuid.UUID
	foodItems map[uuid.UUID]catalog.FoodItem
	carts     map[uuid.UUID]*cart.Cart // by owner
	orders    map[uuid.UUID]order.Order

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:     make(map[uuid.UUID]user.User),
		emails:    make(map[string]uuid.UUID),
		foodItems: make(map[uuid.UUID]catalog.FoodItem),
		carts:     make(map[uuid.UUID]*cart.Cart),
		orders:    make(map[uuid.UUID]order.Order),
		now:       time.Now,
	}
}

func (s *Store) Users() user.Repository { return userRepository{s} }
func (s *Store) FoodItems() catalog.Repository { return foodItemRepository{s} }
func (s *Store) Carts() cart.Repository { return cartRepository{s} }
func (s *Store) Orders() order.Repository { return orderRepository{s} }
