package order

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderCols = []string{
	"id", "token", "customer_name", "phone", "address", "notes",
	"total", "lat", "lng", "status", "created_at",
}

var lineCols = []string{
	"id", "order_id", "name", "quantity", "price",
	"id", "name", "price",
}

func sampleOrder() *Order {
	return &Order{
		ID:           "ord-1001",
		CustomerName: "Ana",
		Phone:        "5551234",
		Address:      "Calle 1",
		Total:        420,
		Status:       StatusReceived,
		CreatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Items: []*Line{
			{Name: "Mexicana", Quantity: 1, Price: 210, Extras: []*Extra{{Name: "Extra queso", Price: 20}}},
			{Name: "Hawaiana Premium", Quantity: 1, Price: 190, Extras: []*Extra{
				{Name: "Piña", Price: 0},
				{Name: "Jalapeño", Price: 15},
			}},
		},
	}
}

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock, db
}

func TestRepository_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)
		o := sampleOrder()

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WithArgs("ord-1001", "Ana", "5551234", "Calle 1", "", 420.0, nil, nil, "received", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("INSERT INTO order_lines").
			WithArgs(7, "Mexicana", 1, 210.0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WithArgs(11, "Extra queso", 20.0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
		mock.ExpectQuery("INSERT INTO order_lines").
			WithArgs(7, "Hawaiana Premium", 1, 190.0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WithArgs(12, "Piña", 0.0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WithArgs(12, "Jalapeño", 15.0).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(102))
		mock.ExpectCommit()

		id, err := repo.CreateOrder(ctx, o)

		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.Equal(t, int64(12), o.Items[1].ID)
		assert.Equal(t, int64(7), o.Items[1].OrderID)
		assert.Equal(t, int64(102), o.Items[1].Extras[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FailureOnLastExtraRollsBack", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectQuery("INSERT INTO order_lines").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
		mock.ExpectQuery("INSERT INTO order_lines").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
		mock.ExpectQuery("INSERT INTO order_line_extras").
			WithArgs(12, "Jalapeño", 15.0).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		id, err := repo.CreateOrder(ctx, sampleOrder())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert line extra")
		assert.Zero(t, id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateToken", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		_, err := repo.CreateOrder(ctx, sampleOrder())

		assert.ErrorIs(t, err, ErrDuplicateOrder)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OtherInsertError", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnError(&pq.Error{Code: "23502", Message: "null value"})
		mock.ExpectRollback()

		_, err := repo.CreateOrder(ctx, sampleOrder())

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateOrder)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM orders WHERE token = (.+) FOR UPDATE").
			WithArgs("ord-1001").
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow(7, "ord-1001", "Ana", "5551234", "Calle 1", "", 420.0, 19.43, -99.13, "preparing", created))
		mock.ExpectExec("UPDATE orders SET status").
			WithArgs("ready", 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var seen [2]Status
		o, err := repo.UpdateStatus(ctx, "ord-1001", StatusReady, func(from, to Status) error {
			seen = [2]Status{from, to}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, [2]Status{StatusPreparing, StatusReady}, seen)
		assert.Equal(t, StatusReady, o.Status)
		assert.Equal(t, int64(7), o.DBID)
		require.NotNil(t, o.Lat)
		assert.InDelta(t, 19.43, *o.Lat, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM orders WHERE token").
			WithArgs("does-not-exist").
			WillReturnRows(sqlmock.NewRows(orderCols))
		mock.ExpectRollback()

		o, err := repo.UpdateStatus(ctx, "does-not-exist", StatusReady, nil)

		assert.Nil(t, o)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GuardRejects", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM orders WHERE token").
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow(7, "ord-1001", "Ana", "5551234", "Calle 1", "", 420.0, nil, nil, "delivered", created))
		mock.ExpectRollback()

		_, err := repo.UpdateStatus(ctx, "ord-1001", StatusReceived, NewEngine(PolicyStrict).Guard)

		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ListOrders(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("WithLinesAndExtras", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)
		ready := StatusReady

		mock.ExpectQuery("SELECT (.+) FROM orders WHERE status = (.+) ORDER BY created_at").
			WithArgs("ready").
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow(7, "ord-1001", "Ana", "555", "Calle 1", "", 230.0, nil, nil, "ready", created).
				AddRow(8, "ord-1002", "Luis", "556", "Calle 2", "timbre roto", 189.0, nil, nil, "ready", created))
		mock.ExpectQuery("FROM order_lines l").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(lineCols).
				AddRow(11, 7, "Mexicana", 1, 210.0, 100, "Extra queso", 20.0).
				AddRow(11, 7, "Mexicana", 1, 210.0, 101, "Orilla rellena", 0.0).
				AddRow(12, 8, "Pepperoni Especial", 1, 189.0, nil, nil, nil))

		orders, err := repo.ListOrders(ctx, Filter{Status: &ready})

		require.NoError(t, err)
		require.Len(t, orders, 2)
		require.Len(t, orders[0].Items, 1)
		assert.Len(t, orders[0].Items[0].Extras, 2)
		assert.Equal(t, "Orilla rellena", orders[0].Items[0].Extras[1].Name)
		require.Len(t, orders[1].Items, 1)
		assert.Empty(t, orders[1].Items[0].Extras)
		assert.Equal(t, "timbre roto", orders[1].Notes)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM orders ORDER BY").
			WillReturnRows(sqlmock.NewRows(orderCols))

		orders, err := repo.ListOrders(ctx, Filter{})

		require.NoError(t, err)
		assert.NotNil(t, orders)
		assert.Empty(t, orders)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM orders").WillReturnError(errors.New("connection refused"))

		_, err := repo.ListOrders(ctx, Filter{})
		assert.Error(t, err)
	})
}

func TestRepository_GetOrderLines(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	mock.ExpectQuery("FROM order_lines l").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(lineCols).
			AddRow(11, 7, "Mexicana", 2, 420.0, nil, nil, nil).
			AddRow(12, 7, "Hawaiana Premium", 1, 195.0, 100, "Piña extra", 15.0))

	lines, err := repo.GetOrderLines(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, "Piña extra", lines[1].Extras[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ClearOrders(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM order_line_extras").WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec("DELETE FROM order_lines").WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec("DELETE FROM orders").WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		n, err := repo.ClearOrders(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnFailure", func(t *testing.T) {
		repo, mock, _ := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM order_line_extras").WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec("DELETE FROM order_lines").WillReturnError(errors.New("lock timeout"))
		mock.ExpectRollback()

		_, err := repo.ClearOrders(ctx)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
