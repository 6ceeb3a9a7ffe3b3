package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrFoodItemNotFound = errors.New("food item not found")

type Repository interface {
	Create(ctx context.Context, item *FoodItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*FoodItem, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]FoodItem, error)
	List(ctx context.Context, filter ListFilter) ([]FoodItem, error)
	Update(ctx context.Context, item *FoodItem) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// SelectColumns lists food_items columns in the order ScanRow expects.
const SelectColumns = `id, lister_id, title, description, producer, category, price_cents, image_url, is_available, created_at, updated_at`

func ScanRow(row pgx.Row) (FoodItem, error) {
	var item FoodItem
	err := row.Scan(
		&item.ID,
		&item.ListerID,
		&item.Title,
		&item.Description,
		&item.Producer,
		&item.Category,
		&item.Price,
		&item.ImageURL,
		&item.IsAvailable,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (r *postgresRepository) Create(ctx context.Context, item *FoodItem) error {
	query := `
		INSERT INTO food_items (` + SelectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.ListerID,
		item.Title,
		item.Description,
		item.Producer,
		item.Category,
		int64(item.Price),
		item.ImageURL,
		item.IsAvailable,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert food item: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*FoodItem, error) {
	query := `SELECT ` + SelectColumns + ` FROM food_items WHERE id = $1`

	item, err := ScanRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFoodItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select food item %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]FoodItem, error) {
	items := make(map[uuid.UUID]FoodItem, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	query := `SELECT ` + SelectColumns + ` FROM food_items WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query food items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan food item: %w", err)
		}
		items[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating food items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]FoodItem, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.ListerID != uuid.Nil {
		args = append(args, filter.ListerID)
		conds = append(conds, fmt.Sprintf("lister_id = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + SelectColumns + ` FROM food_items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list food items: %w", err)
	}
	defer rows.Close()

	items := make([]FoodItem, 0)
	for rows.Next() {
		item, err := ScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan food item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating food items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) Update(ctx context.Context, item *FoodItem) error {
	query := `
		UPDATE food_items
		SET title = $1, description = $2, producer = $3, category = $4,
		    price_cents = $5, image_url = $6, is_available = $7, updated_at = $8
		WHERE id = $9
	`
	cmdTag, err := r.db.Exec(ctx, query,
		item.Title,
		item.Description,
		item.Producer,
		item.Category,
		int64(item.Price),
		item.ImageURL,
		item.IsAvailable,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update food item %s: %w", item.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrFoodItemNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM food_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete food item %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrFoodItemNotFound
	}
	return nil
}
