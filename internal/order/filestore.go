package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"pizzeria-be/internal/logger"

	"go.uber.org/zap"
)

var ErrStoreClosed = errors.New("order store closed")

// FileStore keeps every order in memory and rewrites one JSON file on each
// mutation. A single goroutine owns the state; callers queue operations
// to it, so no two operations ever interleave.
type FileStore struct {
	path string
	ops  chan func(*fileState)
	quit chan struct{}
	done chan struct{}
	stop sync.Once
	log  *zap.Logger
}

var _ Repository = (*FileStore)(nil)

type fileState struct {
	orders     []*Order
	nextID     int64
	nextLineID int64
}

// OpenFileStore loads path (a missing file starts an empty store) and starts
// the owning goroutine. Close stops it.
func OpenFileStore(path string) (*FileStore, error) {
	st := &fileState{orders: []*Order{}, nextID: 1, nextLineID: 1}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read order file: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &st.orders); err != nil {
			return nil, fmt.Errorf("parse order file %s: %w", path, err)
		}
	}

	for _, o := range st.orders {
		if o.DBID >= st.nextID {
			st.nextID = o.DBID + 1
		}
		for _, l := range o.Items {
			if l.ID >= st.nextLineID {
				st.nextLineID = l.ID + 1
			}
		}
	}

	s := &FileStore{
		path: path,
		ops:  make(chan func(*fileState)),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger.Component("filestore").With(zap.String("path", path)),
	}
	go s.loop(st)

	s.log.Info("order file loaded", zap.Int("orders", len(st.orders)))
	return s, nil
}

func (s *FileStore) loop(st *fileState) {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op(st)
		case <-s.quit:
			return
		}
	}
}

// Close stops the owning goroutine. Operations after Close fail with ErrStoreClosed.
func (s *FileStore) Close() error {
	s.stop.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

func (s *FileStore) do(ctx context.Context, fn func(*fileState) error) error {
	errc := make(chan error, 1)
	op := func(st *fileState) { errc <- fn(st) }

	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStoreClosed
	}
	return <-errc
}

// persist rewrites the file through a temp file and rename so readers never
// see a half-written list.
func (s *FileStore) persist(st *fileState) error {
	data, err := json.MarshalIndent(st.orders, "", "  ")
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace order file: %w", err)
	}
	return nil
}

func (s *FileStore) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	var id int64
	err := s.do(ctx, func(st *fileState) error {
		for _, existing := range st.orders {
			if existing.ID == o.ID {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
			}
		}

		stored := cloneOrder(o)
		stored.DBID = st.nextID
		lineID := st.nextLineID
		for _, l := range stored.Items {
			l.ID = lineID
			l.OrderID = stored.DBID
			lineID++
		}

		st.orders = append(st.orders, stored)
		if err := s.persist(st); err != nil {
			st.orders = st.orders[:len(st.orders)-1]
			return err
		}

		st.nextID++
		st.nextLineID = lineID
		id = stored.DBID
		for i, l := range stored.Items {
			o.Items[i].ID = l.ID
			o.Items[i].OrderID = l.OrderID
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateOrder) {
			s.log.Error("failed to create order", zap.String("order_id", o.ID), zap.Error(err))
		}
		return 0, err
	}
	return id, nil
}

func (s *FileStore) UpdateStatus(ctx context.Context, token string, status Status, guard Guard) (*Order, error) {
	var updated *Order
	err := s.do(ctx, func(st *fileState) error {
		o := st.find(token)
		if o == nil {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, token)
		}
		if guard != nil {
			if err := guard(o.Status, status); err != nil {
				return err
			}
		}

		prev := o.Status
		o.Status = status
		if err := s.persist(st); err != nil {
			o.Status = prev
			return err
		}

		updated = cloneOrder(o)
		updated.Items = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FileStore) ListOrders(ctx context.Context, filter Filter) ([]*Order, error) {
	out := []*Order{}
	err := s.do(ctx, func(st *fileState) error {
		for _, o := range st.orders {
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			out = append(out, cloneOrder(o))
		}
		return nil
	})
	return out, err
}

func (s *FileStore) GetOrderLines(ctx context.Context, orderID int64) ([]*Line, error) {
	lines := []*Line{}
	err := s.do(ctx, func(st *fileState) error {
		for _, o := range st.orders {
			if o.DBID == orderID {
				lines = cloneOrder(o).Items
				return nil
			}
		}
		return fmt.Errorf("%w: db id %d", ErrOrderNotFound, orderID)
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *FileStore) ClearOrders(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.do(ctx, func(st *fileState) error {
		prev := st.orders
		st.orders = []*Order{}
		if err := s.persist(st); err != nil {
			st.orders = prev
			return err
		}
		deleted = int64(len(prev))
		return nil
	})
	return deleted, err
}

func (st *fileState) find(token string) *Order {
	for _, o := range st.orders {
		if o.ID == token {
			return o
		}
	}
	return nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	if o.Lat != nil {
		lat := *o.Lat
		c.Lat = &lat
	}
	if o.Lng != nil {
		lng := *o.Lng
		c.Lng = &lng
	}
	c.Items = make([]*Line, 0, len(o.Items))
	for _, l := range o.Items {
		lc := *l
		lc.Extras = make([]*Extra, 0, len(l.Extras))
		for _, e := range l.Extras {
			ec := *e
			lc.Extras = append(lc.Extras, &ec)
		}
		c.Items = append(c.Items, &lc)
	}
	return &c
}
