package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/catalog"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/db"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("item not found in cart")
)

// Repository mutates carts with per-owner atomic statements; no operation
// reads the whole cart and writes it back.
type Repository interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	GetOrCreate(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	// AddLine creates the cart if needed and increments the line quantity,
	// inserting the line when absent. Fails with catalog.ErrFoodItemNotFound,
	// or ErrInvalidQuantity when the merged quantity would pass MaxQuantity.
	AddLine(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*Cart, error)
	SetLineQuantity(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*Cart, error)
	RemoveLine(ctx context.Context, ownerID, foodItemID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

type postgresRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{db: pool, now: time.Now}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCart(ctx context.Context, q querier, ownerID uuid.UUID) (*Cart, error) {
	query := `
		SELECT id, owner_id, version, created_at, updated_at
		FROM carts
		WHERE owner_id = $1
	`
	var c Cart
	err := q.QueryRow(ctx, query, ownerID).Scan(&c.ID, &c.OwnerID, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart for owner %s: %w", ownerID, err)
	}

	lines, err := loadLines(ctx, q, c.ID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines
	return &c, nil
}

func loadLines(ctx context.Context, q querier, cartID uuid.UUID) ([]Line, error) {
	query := `
		SELECT food_item_id, quantity, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, food_item_id
	`
	rows, err := q.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart items for cart %s: %w", cartID, err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.FoodItemID, &l.Quantity, &l.AddedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart item for cart %s: %w", cartID, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart items for cart %s: %w", cartID, err)
	}
	return lines, nil
}

// lockCart takes the row lock on the owner's cart for the rest of the transaction.
func lockCart(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (uuid.UUID, error) {
	var cartID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM carts WHERE owner_id = $1 FOR UPDATE`, ownerID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrCartNotFound
		}
		return uuid.Nil, fmt.Errorf("repository: failed to lock cart for owner %s: %w", ownerID, err)
	}
	return cartID, nil
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET version = version + 1, updated_at = $1 WHERE id = $2`, at, cartID)
	if err != nil {
		return fmt.Errorf("repository: failed to touch cart %s: %w", cartID, err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	return loadCart(ctx, r.db, ownerID)
}

func (r *postgresRepository) GetOrCreate(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart id: %w", err)
	}
	now := r.now().UTC()

	query := `
		INSERT INTO carts (id, owner_id, version, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (owner_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, id, ownerID, now); err != nil {
		return nil, fmt.Errorf("repository: failed to create cart for owner %s: %w", ownerID, err)
	}

	return loadCart(ctx, r.db, ownerID)
}

func (r *postgresRepository) AddLine(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*Cart, error) {
	now := r.now().UTC()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM food_items WHERE id = $1)`, foodItemID).Scan(&exists); err != nil {
			return fmt.Errorf("repository: failed to check food item %s: %w", foodItemID, err)
		}
		if !exists {
			return catalog.ErrFoodItemNotFound
		}

		newID, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate cart id: %w", err)
		}

		upsertCart := `
			INSERT INTO carts (id, owner_id, version, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $3)
			ON CONFLICT (owner_id) DO UPDATE
			SET version = carts.version + 1, updated_at = EXCLUDED.updated_at
			RETURNING id
		`
		var cartID uuid.UUID
		if err := tx.QueryRow(ctx, upsertCart, newID, ownerID, now).Scan(&cartID); err != nil {
			return fmt.Errorf("repository: failed to upsert cart for owner %s: %w", ownerID, err)
		}

		upsertLine := `
			INSERT INTO cart_items (cart_id, food_item_id, quantity, added_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cart_id, food_item_id) DO UPDATE
			SET quantity = cart_items.quantity + EXCLUDED.quantity
			WHERE cart_items.quantity + EXCLUDED.quantity <= $5
		`
		cmdTag, err := tx.Exec(ctx, upsertLine, cartID, foodItemID, quantity, now, MaxQuantity)
		if err != nil {
			return fmt.Errorf("repository: failed to add item %s to cart %s: %w", foodItemID, cartID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrInvalidQuantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return loadCart(ctx, r.db, ownerID)
}

func (r *postgresRepository) SetLineQuantity(ctx context.Context, ownerID, foodItemID uuid.UUID, quantity int) (*Cart, error) {
	now := r.now().UTC()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx,
			`UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND food_item_id = $3`,
			quantity, cartID, foodItemID,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to set quantity of item %s in cart %s: %w", foodItemID, cartID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrLineNotFound
		}
		return touchCart(ctx, tx, cartID, now)
	})
	if err != nil {
		return nil, err
	}

	return loadCart(ctx, r.db, ownerID)
}

func (r *postgresRepository) RemoveLine(ctx context.Context, ownerID, foodItemID uuid.UUID) (*Cart, error) {
	now := r.now().UTC()

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND food_item_id = $2`, cartID, foodItemID)
		if err != nil {
			return fmt.Errorf("repository: failed to remove item %s from cart %s: %w", foodItemID, cartID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return nil
		}
		return touchCart(ctx, tx, cartID, now)
	})
	if err != nil {
		return nil, err
	}

	return loadCart(ctx, r.db, ownerID)
}

func (r *postgresRepository) Clear(ctx context.Context, ownerID uuid.UUID) error {
	now := r.now().UTC()

	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		cartID, err := lockCart(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("repository: failed to clear cart %s: %w", cartID, err)
		}
		return touchCart(ctx, tx, cartID, now)
	})
}
