package product

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository serves the menu when orders live in a flat file and
// there is no products table. Changes are lost on restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	products []*Product
	nextID   int64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository(initial []*Product) *MemoryRepository {
	m := &MemoryRepository{nextID: 1}
	for _, p := range initial {
		c := *p
		if c.ID == 0 {
			c.ID = m.nextID
		}
		if c.ID >= m.nextID {
			m.nextID = c.ID + 1
		}
		m.products = append(m.products, &c)
	}
	return m
}

func (m *MemoryRepository) List(ctx context.Context) ([]*Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Product, 0, len(m.products))
	for _, p := range m.products {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryRepository) Create(ctx context.Context, p *Product) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *p
	c.ID = m.nextID
	m.nextID++
	m.products = append(m.products, &c)

	out := c
	return &out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", ErrInvalidProduct)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		if p.ID == id {
			patch.apply(p)
			out := *p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
}

func (m *MemoryRepository) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.products), nil
}

func (m *MemoryRepository) InsertMany(ctx context.Context, products []*Product) error {
	for _, p := range products {
		created, err := m.Create(ctx, p)
		if err != nil {
			return err
		}
		p.ID = created.ID
	}
	return nil
}
