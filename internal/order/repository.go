package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pizzeria-be/internal/db"
	"pizzeria-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) (int64, error)
	UpdateStatus(ctx context.Context, token string, status Status, guard Guard) (*Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]*Order, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]*Line, error)
	ClearOrders(ctx context.Context) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const orderColumns = `id, token, customer_name, phone, address, notes, total, lat, lng, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o        Order
		lat, lng sql.NullFloat64
	)
	err := row.Scan(
		&o.DBID, &o.ID, &o.CustomerName, &o.Phone, &o.Address, &o.Notes,
		&o.Total, &lat, &lng, &o.Status, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		o.Lat = &lat.Float64
	}
	if lng.Valid {
		o.Lng = &lng.Float64
	}
	return &o, nil
}

// CreateOrder inserts the order, its lines and their extras in one
// transaction. Nothing is visible unless every insert succeeds.
func (r *repository) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.String("order_id", o.ID),
	)

	var orderID int64
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO orders (
				token, customer_name, phone, address, notes,
				total, lat, lng, status, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING id
		`,
			o.ID, o.CustomerName, o.Phone, o.Address, o.Notes,
			o.Total, o.Lat, o.Lng, string(o.Status), o.CreatedAt,
		).Scan(&orderID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, line := range o.Items {
			var lineID int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO order_lines (order_id, name, quantity, price)
				VALUES ($1,$2,$3,$4)
				RETURNING id
			`, orderID, line.Name, line.Quantity, line.Price).Scan(&lineID)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
			line.ID = lineID
			line.OrderID = orderID

			for _, extra := range line.Extras {
				err := tx.QueryRowContext(ctx, `
					INSERT INTO order_line_extras (line_id, name, price)
					VALUES ($1,$2,$3)
					RETURNING id
				`, lineID, extra.Name, extra.Price).Scan(&extra.ID)
				if err != nil {
					return fmt.Errorf("insert line extra: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			log.Warn("duplicate order token")
		} else {
			log.Error("failed to create order", zap.Error(err))
		}
		return 0, err
	}

	log.Info("order created", zap.Int64("db_id", orderID), zap.Int("lines", len(o.Items)))
	return orderID, nil
}

// UpdateStatus locks the order row, lets guard judge the move and writes the
// new status, all in one transaction.
func (r *repository) UpdateStatus(ctx context.Context, token string, status Status, guard Guard) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateStatus"),
		zap.String("order_id", token),
	)

	var updated *Order
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE token = $1 FOR UPDATE`, token))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, token)
		}
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}

		if guard != nil {
			if err := guard(o.Status, status); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1 WHERE id = $2`, string(status), o.DBID); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		o.Status = status
		updated = o
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) && !errors.Is(err, ErrIllegalTransition) {
			log.Error("failed to update status", zap.Error(err))
		}
		return nil, err
	}

	log.Info("order status updated", zap.String("status", string(status)))
	return updated, nil
}

func (r *repository) ListOrders(ctx context.Context, filter Filter) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrders"),
	)

	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*filter.Status))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := []*Order{}
	byID := make(map[int64]*Order)
	ids := []int64{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
		byID[o.DBID] = o
		ids = append(ids, o.DBID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	lines, err := r.fetchLines(ctx, ids)
	if err != nil {
		log.Error("failed to load order lines", zap.Error(err))
		return nil, err
	}
	for _, l := range lines {
		if o, ok := byID[l.OrderID]; ok {
			o.Items = append(o.Items, l)
		}
	}
	return orders, nil
}

func (r *repository) GetOrderLines(ctx context.Context, orderID int64) ([]*Line, error) {
	lines, err := r.fetchLines(ctx, []int64{orderID})
	if err != nil {
		logger.FromCtx(ctx).Error("failed to load order lines",
			zap.String("layer", "repository"),
			zap.String("method", "GetOrderLines"),
			zap.Int64("db_id", orderID),
			zap.Error(err),
		)
		return nil, err
	}
	return lines, nil
}

// fetchLines loads lines with their extras for every order in orderIDs,
// ordered by line id.
func (r *repository) fetchLines(ctx context.Context, orderIDs []int64) ([]*Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.order_id, l.name, l.quantity, l.price,
		       e.id, e.name, e.price
		FROM order_lines l
		LEFT JOIN order_line_extras e ON e.line_id = l.id
		WHERE l.order_id = ANY($1)
		ORDER BY l.id ASC, e.id ASC
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []*Line{}
	var current *Line
	for rows.Next() {
		var (
			l          Line
			extraID    sql.NullInt64
			extraName  sql.NullString
			extraPrice sql.NullFloat64
		)
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.Name, &l.Quantity, &l.Price,
			&extraID, &extraName, &extraPrice,
		); err != nil {
			return nil, err
		}

		if current == nil || current.ID != l.ID {
			current = &l
			lines = append(lines, current)
		}
		if extraID.Valid {
			current.Extras = append(current.Extras, &Extra{
				ID:    extraID.Int64,
				Name:  extraName.String,
				Price: extraPrice.Float64,
			})
		}
	}
	return lines, rows.Err()
}

// ClearOrders deletes every order with its lines and extras.
func (r *repository) ClearOrders(ctx context.Context) (int64, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ClearOrders"),
	)

	var deleted int64
	err := db.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_line_extras`); err != nil {
			return fmt.Errorf("delete extras: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines`); err != nil {
			return fmt.Errorf("delete lines: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM orders`)
		if err != nil {
			return fmt.Errorf("delete orders: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		log.Error("failed to clear orders", zap.Error(err))
		return 0, err
	}

	log.Info("orders cleared", zap.Int64("deleted", deleted))
	return deleted, nil
}
