package product

import (
	"context"
	"fmt"
	"strings"

	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/realtime"

	"go.uber.org/zap"
)

type Broadcaster interface {
	Broadcast(event string, payload any)
}

type Service interface {
	List(ctx context.Context) ([]*Product, error)
	Create(ctx context.Context, in CreateInput) (*Product, error)
	Update(ctx context.Context, id int64, patch Patch) (*Product, error)
}

type service struct {
	repo Repository
	hub  Broadcaster
}

func NewService(repo Repository, hub Broadcaster) Service {
	return &service{repo: repo, hub: hub}
}

func validateProduct(p *Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]*Product, error) {
	return s.repo.List(ctx)
}

func (s *service) Create(ctx context.Context, in CreateInput) (*Product, error) {
	p := &Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Image:       in.Image,
		Category:    in.Category,
		Available:   true,
	}
	if in.Available != nil {
		p.Available = *in.Available
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	s.publishMenu(ctx)
	return created, nil
}

func (s *service) Update(ctx context.Context, id int64, patch Patch) (*Product, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidProduct)
	}
	if patch.Price != nil && *patch.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.publishMenu(ctx)
	return updated, nil
}

// publishMenu re-reads the catalog and broadcasts it whole. A failed read
// only skips the broadcast; the mutation already succeeded.
func (s *service) publishMenu(ctx context.Context) {
	products, err := s.repo.List(ctx)
	if err != nil {
		logger.FromCtx(ctx).Warn("menu broadcast skipped",
			zap.String("layer", "service"),
			zap.Error(err),
		)
		return
	}
	s.hub.Broadcast(realtime.EventMenuUpdated, products)
}
