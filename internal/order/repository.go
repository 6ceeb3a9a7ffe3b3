package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/db"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/outbox"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	aggregateOrder          = "order"
)

// BuildFunc turns a locked cart snapshot into the order to persist.
type BuildFunc func(snapshot CartSnapshot) (*Order, error)

type Repository interface {
	// Checkout locks the owner's cart, builds the order from it, stores the
	// order and empties the cart in one transaction. A missing or empty cart
	// yields ErrEmptyCart.
	Checkout(ctx context.Context, ownerID uuid.UUID, build BuildFunc) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	// UpdateOrderStatus changes the status only if it is still `from`.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus, at time.Time) (*Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool}
}

type statusChangedPayload struct {
	OrderID   uuid.UUID   `json:"orderId"`
	UserID    uuid.UUID   `json:"userId"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedAt time.Time   `json:"changedAt"`
}

func (r *postgresRepository) Checkout(ctx context.Context, ownerID uuid.UUID, build BuildFunc) (*Order, error) {
	var created *Order

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		snap, err := r.snapshotCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		o, err := build(snap)
		if err != nil {
			return err
		}

		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}

		event, err := outbox.NewEvent(aggregateOrder, o.ID.String(), EventOrderCreated, o)
		if err != nil {
			return err
		}
		if err := outbox.Insert(ctx, tx, event); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, snap.CartID); err != nil {
			return fmt.Errorf("repository: failed to clear cart %s: %w", snap.CartID, err)
		}
		cmdTag, err := tx.Exec(ctx,
			`UPDATE carts SET version = version + 1, updated_at = $1 WHERE id = $2 AND version = $3`,
			o.OrderDate, snap.CartID, snap.Version,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to bump cart %s version: %w", snap.CartID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrCartChanged
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// snapshotCart locks the cart row and reads its lines together with the
// catalog entries they point at. Catalog rows are share-locked so prices
// cannot move under the checkout.
func (r *postgresRepository) snapshotCart(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (CartSnapshot, error) {
	snap := CartSnapshot{OwnerID: ownerID}

	err := tx.QueryRow(ctx,
		`SELECT id, version FROM carts WHERE owner_id = $1 FOR UPDATE`, ownerID,
	).Scan(&snap.CartID, &snap.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snap, ErrEmptyCart
		}
		return snap, fmt.Errorf("repository: failed to lock cart for owner %s: %w", ownerID, err)
	}

	rows, err := tx.Query(ctx, `
		SELECT food_item_id, quantity
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, food_item_id
	`, snap.CartID)
	if err != nil {
		return snap, fmt.Errorf("repository: failed to query cart items for cart %s: %w", snap.CartID, err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var l SnapshotLine
		if err := rows.Scan(&l.FoodItemID, &l.Quantity); err != nil {
			rows.Close()
			return snap, fmt.Errorf("repository: failed to scan cart item: %w", err)
		}
		snap.Lines = append(snap.Lines, l)
		ids = append(ids, l.FoodItemID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("repository: error iterating cart items: %w", err)
	}

	if len(snap.Lines) == 0 {
		return snap, ErrEmptyCart
	}

	itemRows, err := tx.Query(ctx,
		`SELECT `+catalog.SelectColumns+` FROM food_items WHERE id = ANY($1) FOR SHARE`, ids,
	)
	if err != nil {
		return snap, fmt.Errorf("repository: failed to query food items for checkout: %w", err)
	}
	items := make(map[uuid.UUID]catalog.FoodItem, len(ids))
	for itemRows.Next() {
		item, err := catalog.ScanRow(itemRows)
		if err != nil {
			itemRows.Close()
			return snap, fmt.Errorf("repository: failed to scan food item: %w", err)
		}
		items[item.ID] = item
	}
	itemRows.Close()
	if err := itemRows.Err(); err != nil {
		return snap, fmt.Errorf("repository: error iterating food items: %w", err)
	}

	for i := range snap.Lines {
		if item, ok := items[snap.Lines[i].FoodItemID]; ok {
			snap.Lines[i].Item = &item
		}
	}
	return snap, nil
}

func insertOrder(ctx context.Context, tx pgx.Tx, o *Order) error {
	queryOrder := `
		INSERT INTO orders (
			id, user_id, status, payment_method, total_cents,
			ship_full_name, ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
			order_date, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	sd := o.ShippingDetails
	_, err := tx.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		string(o.Status),
		string(o.PaymentMethod),
		int64(o.TotalAmount),
		sd.FullName,
		sd.Address,
		sd.City,
		sd.State,
		sd.PostalCode,
		sd.Phone,
		o.OrderDate,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, food_item_id, title, producer, unit_price_cents, quantity, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range o.OrderItems {
		item := &o.OrderItems[i]
		_, err := tx.Exec(ctx, queryItem,
			item.ID,
			o.ID,
			item.FoodItemID,
			item.Title,
			item.Producer,
			int64(item.UnitPrice),
			item.Quantity,
			i,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

const orderColumns = `
	id, user_id, status, payment_method, total_cents,
	ship_full_name, ship_address, ship_city, ship_state, ship_postal_code, ship_phone,
	order_date, updated_at
`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.PaymentMethod,
		&o.TotalAmount,
		&o.ShippingDetails.FullName,
		&o.ShippingDetails.Address,
		&o.ShippingDetails.City,
		&o.ShippingDetails.State,
		&o.ShippingDetails.PostalCode,
		&o.ShippingDetails.Phone,
		&o.OrderDate,
		&o.UpdatedAt,
	)
	return o, err
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	orders := []Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return r.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_date DESC, id`,
		userID,
	)
}

func (r *postgresRepository) ListOrders(ctx context.Context) ([]Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date DESC, id`)
}

func (r *postgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of all given orders in one query.
func (r *postgresRepository) attachItems(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}

	index := make(map[uuid.UUID]int, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for i := range orders {
		orders[i].OrderItems = make([]OrderItem, 0)
		index[orders[i].ID] = i
		ids = append(ids, orders[i].ID)
	}

	query := `
		SELECT id, order_id, food_item_id, title, producer, unit_price_cents, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    OrderItem
			orderID uuid.UUID
		)
		if err := rows.Scan(&item.ID, &orderID, &item.FoodItemID, &item.Title, &item.Producer, &item.UnitPrice, &item.Quantity); err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].OrderItems = append(orders[i].OrderItems, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: failed iterating order items: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus, at time.Time) (*Order, error) {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var userID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE orders
			SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4
			RETURNING user_id
		`, string(to), at, orderID, string(from)).Scan(&userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				var exists bool
				if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
					return fmt.Errorf("repository: failed to check order %s: %w", orderID, err)
				}
				if !exists {
					return ErrOrderNotFound
				}
				log.Warn().Stringer("order_id", orderID).Stringer("expected_status", from).Msg("repository: order status changed concurrently")
				return ErrStatusConflict
			}
			return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
		}

		event, err := outbox.NewEvent(aggregateOrder, orderID.String(), EventOrderStatusChanged, statusChangedPayload{
			OrderID:   orderID,
			UserID:    userID,
			From:      from,
			To:        to,
			ChangedAt: at,
		})
		if err != nil {
			return err
		}
		return outbox.Insert(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	return r.GetOrderByID(ctx, orderID)
}
