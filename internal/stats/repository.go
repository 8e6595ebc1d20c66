package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pizzeria-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	// RevenueSince sums the totals of orders created at or after since.
	RevenueSince(ctx context.Context, since time.Time) (float64, error)
	// TopSellers counts order lines per product name, most ordered first,
	// ties broken by name.
	TopSellers(ctx context.Context, limit int) ([]TopItem, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) RevenueSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM orders WHERE created_at >= $1`, since,
	).Scan(&total)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to sum revenue",
			zap.String("layer", "repository"),
			zap.String("method", "RevenueSince"),
			zap.Error(err),
		)
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

func (r *repository) TopSellers(ctx context.Context, limit int) ([]TopItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, COUNT(*) AS line_count
		FROM order_lines
		GROUP BY name
		ORDER BY line_count DESC, name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to rank products",
			zap.String("layer", "repository"),
			zap.String("method", "TopSellers"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("top sellers: %w", err)
	}
	defer rows.Close()

	items := []TopItem{}
	for rows.Next() {
		var it TopItem
		if err := rows.Scan(&it.Name, &it.Count); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
