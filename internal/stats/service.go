package stats

import (
	"context"
	"time"
)

const topLimit = 3

type Service interface {
	Summary(ctx context.Context) (*Summary, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

// startOfDay is local midnight of t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	revenue, err := s.repo.RevenueSince(ctx, startOfDay(s.now()))
	if err != nil {
		return nil, err
	}

	top, err := s.repo.TopSellers(ctx, topLimit)
	if err != nil {
		return nil, err
	}

	return &Summary{RevenueToday: revenue, TopThree: top}, nil
}
