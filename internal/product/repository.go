package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pizzeria-be/internal/db"
	"pizzeria-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	List(ctx context.Context) ([]*Product, error)
	Create(ctx context.Context, p *Product) (*Product, error)
	Update(ctx context.Context, id int64, patch Patch) (*Product, error)
	Count(ctx context.Context) (int, error)
	InsertMany(ctx context.Context, products []*Product) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const productColumns = `id, name, description, price, image, category, available`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Image, &p.Category, &p.Available); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context) ([]*Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to query products",
			zap.String("layer", "repository"),
			zap.String("method", "List"),
			zap.Error(err),
		)
		return nil, err
	}
	defer rows.Close()

	products := []*Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) Create(ctx context.Context, p *Product) (*Product, error) {
	created, err := scanProduct(r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, image, category, available)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING `+productColumns,
		p.Name, p.Description, p.Price, p.Image, p.Category, p.Available,
	))
	if err != nil {
		logger.FromCtx(ctx).Error("failed to create product",
			zap.String("layer", "repository"),
			zap.String("method", "Create"),
			zap.Error(err),
		)
		return nil, err
	}
	return created, nil
}

// Update writes only the fields set in patch. Column names come from a fixed
// list, never from the request.
func (r *repository) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Image != nil {
		add("image", *patch.Image)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Available != nil {
		add("available", *patch.Available)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidProduct)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update product",
			zap.String("layer", "repository"),
			zap.String("method", "Update"),
			zap.Int64("product_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

func (r *repository) InsertMany(ctx context.Context, products []*Product) error {
	return db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, p := range products {
			err := tx.QueryRowContext(ctx, `
				INSERT INTO products (name, description, price, image, category, available)
				VALUES ($1,$2,$3,$4,$5,$6)
				RETURNING id
			`, p.Name, p.Description, p.Price, p.Image, p.Category, p.Available).Scan(&p.ID)
			if err != nil {
				return fmt.Errorf("insert %q: %w", p.Name, err)
			}
		}
		return nil
	})
}
