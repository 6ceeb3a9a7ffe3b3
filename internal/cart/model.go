package cart

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

// Line is one (food item, quantity) pair. Quantity is always >= 1.
type Line struct {
	FoodItemID uuid.UUID `json:"itemId"`
	Quantity   int       `json:"quantity"`
	AddedAt    time.Time `json:"addedAt"`
}

// Cart is the server-side cart of one user. It stores references only;
// catalog details are joined in when the cart is rendered.
type Cart struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner"`
	Lines     []Line    `json:"lines"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

func (c *Cart) FoodItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.FoodItemID)
	}
	return ids
}

// LineView is a cart line with catalog details resolved for display.
type LineView struct {
	FoodItemID uuid.UUID   `json:"itemId"`
	Quantity   int         `json:"quantity"`
	Available  bool        `json:"available"`
	Title      string      `json:"title,omitempty"`
	Producer   string      `json:"producer,omitempty"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	UnitPrice  money.Cents `json:"unitPrice"`
	Subtotal   money.Cents `json:"subtotal"`
}

type View struct {
	ID            uuid.UUID   `json:"id"`
	OwnerID       uuid.UUID   `json:"owner"`
	Lines         []LineView  `json:"items"`
	TotalQuantity int         `json:"totalQuantity"`
	Total         money.Cents `json:"total"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// Resolve joins cart lines with their catalog entries. Lines whose entry is
// gone or withdrawn are marked unavailable and left out of the total.
func Resolve(c *Cart, items map[uuid.UUID]catalog.FoodItem) (*View, error) {
	view := &View{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		Lines:     make([]LineView, 0, len(c.Lines)),
		UpdatedAt: c.UpdatedAt,
	}

	for _, l := range c.Lines {
		lv := LineView{FoodItemID: l.FoodItemID, Quantity: l.Quantity}
		view.TotalQuantity += l.Quantity

		item, ok := items[l.FoodItemID]
		if ok {
			lv.Title = item.Title
			lv.Producer = item.Producer
			lv.ImageURL = item.ImageURL
			lv.UnitPrice = item.Price
			lv.Available = item.IsAvailable
		}

		if lv.Available {
			sub, err := item.Price.Mul(l.Quantity)
			if err != nil {
				return nil, err
			}
			lv.Subtotal = sub
			if view.Total, err = view.Total.Add(sub); err != nil {
				return nil, err
			}
		}

		view.Lines = append(view.Lines, lv)
	}

	return view, nil
}
