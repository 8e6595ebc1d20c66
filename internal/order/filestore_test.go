package order

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.json")
	s, err := OpenFileStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestFileStore_CreateAndReload(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	o := sampleOrder()
	id, err := s.CreateOrder(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int64(2), o.Items[1].ID)

	second := sampleOrder()
	second.ID = "ord-1002"
	id, err = s.CreateOrder(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	require.NoError(t, s.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	orders, err := reopened.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	want := sampleOrder()
	want.DBID = 1
	for i, l := range want.Items {
		l.ID = int64(i + 1)
		l.OrderID = 1
	}
	if diff := cmp.Diff(want, orders[0], cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("reloaded order mismatch (-want +got):\n%s", diff)
	}

	// Ids keep counting after a reload.
	third := sampleOrder()
	third.ID = "ord-1003"
	id, err = reopened.CreateOrder(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, int64(5), third.Items[0].ID)
}

func TestFileStore_DuplicateToken(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	_, err := s.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	dup := sampleOrder()
	dup.CustomerName = "Impostor"
	_, err = s.CreateOrder(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	orders, err := s.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Ana", orders[0].CustomerName)
}

func TestFileStore_FailedWriteLeavesNoOrder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	defer s.Close()

	// A directory at the target path makes the final rename fail.
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))

	_, err = s.CreateOrder(ctx, sampleOrder())
	require.Error(t, err)

	orders, err := s.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	leftovers, err := filepath.Glob(filepath.Join(dir, "orders.json.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	_, err := s.CreateOrder(ctx, sampleOrder())
	require.NoError(t, err)

	o, err := s.UpdateStatus(ctx, "ord-1001", StatusReady, NewEngine(PolicyStrict).Guard)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, o.Status)
	assert.Equal(t, int64(1), o.DBID)

	_, err = s.UpdateStatus(ctx, "ord-1001", StatusPreparing, NewEngine(PolicyStrict).Guard)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	_, err = s.UpdateStatus(ctx, "does-not-exist", StatusReady, nil)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	var onDisk []*Order
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, 1)
	assert.Equal(t, StatusReady, onDisk[0].Status)
}

func TestFileStore_ListFilterAndLines(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	for _, token := range []string{"ord-1", "ord-2", "ord-3"} {
		o := sampleOrder()
		o.ID = token
		_, err := s.CreateOrder(ctx, o)
		require.NoError(t, err)
	}
	_, err := s.UpdateStatus(ctx, "ord-2", StatusReady, nil)
	require.NoError(t, err)

	ready := StatusReady
	orders, err := s.ListOrders(ctx, Filter{Status: &ready})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-2", orders[0].ID)

	lines, err := s.GetOrderLines(ctx, orders[0].DBID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Mexicana", lines[0].Name)

	// Returned values are copies.
	lines[0].Name = "changed"
	again, err := s.GetOrderLines(ctx, orders[0].DBID)
	require.NoError(t, err)
	assert.Equal(t, "Mexicana", again[0].Name)

	_, err = s.GetOrderLines(ctx, 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFileStore_ClearOrders(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	for _, token := range []string{"ord-1", "ord-2"} {
		o := sampleOrder()
		o.ID = token
		_, err := s.CreateOrder(ctx, o)
		require.NoError(t, err)
	}

	n, err := s.ClearOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	orders, err := s.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestFileStore_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o := sampleOrder()
			o.ID = "ord-c" + string(rune('a'+i))
			_, err := s.CreateOrder(ctx, o)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	orders, err := s.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, orders, 20)

	seen := map[int64]bool{}
	for _, o := range orders {
		assert.False(t, seen[o.DBID], "duplicate db id %d", o.DBID)
		seen[o.DBID] = true
	}
}

func TestFileStore_Closed(t *testing.T) {
	s, _ := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ListOrders(context.Background(), Filter{})
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestOpenFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}
