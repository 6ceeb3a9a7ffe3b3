package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

// FoodItem is a marketplace listing.
type FoodItem struct {
	ID          uuid.UUID   `json:"id"`
	ListerID    uuid.UUID   `json:"listerId"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Producer    string      `json:"producer"`
	Category    string      `json:"category"`
	Price       money.Cents `json:"price"`
	ImageURL    string      `json:"imageUrl"`
	IsAvailable bool        `json:"isAvailable"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type ListFilter struct {
	Category string
	ListerID uuid.UUID
	Query    string
	Limit    int
	Offset   int
}
