package stats

import (
	"context"
	"sort"
	"time"

	"pizzeria-be/internal/order"
)

// OrderLister is the read side of an order store.
type OrderLister interface {
	ListOrders(ctx context.Context, filter order.Filter) ([]*order.Order, error)
}

// orderSummarizer computes the stats from the full order list, for stores
// that cannot aggregate themselves.
type orderSummarizer struct {
	orders OrderLister
}

func NewOrderSummarizer(orders OrderLister) Repository {
	return &orderSummarizer{orders: orders}
}

func (s *orderSummarizer) RevenueSince(ctx context.Context, since time.Time) (float64, error) {
	orders, err := s.orders.ListOrders(ctx, order.Filter{})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, o := range orders {
		if !o.CreatedAt.Before(since) {
			total += o.Total
		}
	}
	return total, nil
}

func (s *orderSummarizer) TopSellers(ctx context.Context, limit int) ([]TopItem, error) {
	orders, err := s.orders.ListOrders(ctx, order.Filter{})
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, o := range orders {
		for _, l := range o.Items {
			counts[l.Name]++
		}
	}
	return rank(counts, limit), nil
}

func rank(counts map[string]int, limit int) []TopItem {
	items := make([]TopItem, 0, len(counts))
	for name, n := range counts {
		items = append(items, TopItem{Name: name, Count: n})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
