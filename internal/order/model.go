package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/money"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "credit-card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentPayPal, PaymentCashOnDelivery:
		return true
	}
	return false
}

type ShippingDetails struct {
	FullName   string `json:"fullName" validate:"required,max=200"`
	Address    string `json:"address" validate:"required,max=500"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,max=100"`
	PostalCode string `json:"postalCode" validate:"required,postcode_iso3166_alpha2=US"`
	Phone      string `json:"phone" validate:"required,phone10"`
}

// OrderItem is a priced copy of a cart line taken at checkout. It does not
// follow later catalog edits.
type OrderItem struct {
	ID         uuid.UUID   `json:"id"`
	FoodItemID uuid.UUID   `json:"itemId"`
	Title      string      `json:"title"`
	Producer   string      `json:"producer"`
	UnitPrice  money.Cents `json:"unitPrice"`
	Quantity   int         `json:"quantity"`
}

func (i OrderItem) Subtotal() (money.Cents, error) {
	return i.UnitPrice.Mul(i.Quantity)
}

// Order is immutable after checkout except for Status and UpdatedAt.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user"`
	OrderItems      []OrderItem     `json:"items"`
	ShippingDetails ShippingDetails `json:"shippingDetails"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	TotalAmount     money.Cents     `json:"totalAmount"`
	Status          OrderStatus     `json:"status"`
	OrderDate       time.Time       `json:"orderDate"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// SnapshotLine is a cart line read inside the checkout transaction. Item is
// nil when the catalog entry no longer exists.
type SnapshotLine struct {
	FoodItemID uuid.UUID
	Quantity   int
	Item       *catalog.FoodItem
}

type CartSnapshot struct {
	CartID  uuid.UUID
	OwnerID uuid.UUID
	Version int64
	Lines   []SnapshotLine
}

// Actor is the authenticated caller acting on an order.
type Actor struct {
	UserID uuid.UUID
	Admin  bool
}
