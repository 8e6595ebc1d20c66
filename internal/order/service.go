package order

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/realtime"

	"go.uber.org/zap"
)

// Broadcaster fans an event out to connected clients. It never fails from
// the caller's point of view.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

type Service interface {
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error)
	ChangeStatus(ctx context.Context, token, status string) (*Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]*Order, error)
	ClearOrders(ctx context.Context) (int64, error)
}

type service struct {
	repo   Repository
	engine *Engine
	hub    Broadcaster
	now    func() time.Time
}

func NewService(repo Repository, engine *Engine, hub Broadcaster) Service {
	if engine == nil {
		engine = NewEngine(PolicyPermissive)
	}
	return &service{
		repo:   repo,
		engine: engine,
		hub:    hub,
		now:    time.Now,
	}
}

// Column limits of the orders and order_lines tables, in characters.
const (
	maxTokenLen = 64
	maxNameLen  = 255
	maxPhoneLen = 32
)

// required appends a problem when v is blank or longer than limit characters.
func required(problems []string, field, v string, limit int) []string {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return append(problems, field+" is required")
	case utf8.RuneCountInString(v) > limit:
		return append(problems, fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return problems
}

func validate(in PlaceOrderInput) error {
	var problems []string
	problems = required(problems, "id", in.ID, maxTokenLen)
	problems = required(problems, "customer_name", in.CustomerName, maxNameLen)
	problems = required(problems, "phone", in.Phone, maxPhoneLen)
	if strings.TrimSpace(in.Address) == "" {
		problems = append(problems, "address is required")
	}
	if in.Total < 0 {
		problems = append(problems, "total must not be negative")
	}
	if len(in.Items) == 0 {
		problems = append(problems, "at least one item is required")
	}
	for i, item := range in.Items {
		problems = required(problems, fmt.Sprintf("items[%d].name", i), item.Name, maxNameLen)
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
		if item.TotalItemPrice < 0 {
			problems = append(problems, fmt.Sprintf("items[%d].total_item_price must not be negative", i))
		}
		for j, extra := range item.Extras {
			if utf8.RuneCountInString(extra.Name) > maxNameLen {
				problems = append(problems, fmt.Sprintf("items[%d].extras[%d].name must be at most %d characters", i, j, maxNameLen))
			}
			if extra.Price < 0 {
				problems = append(problems, fmt.Sprintf("items[%d].extras[%d].price must not be negative", i, j))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, "; "))
	}
	return nil
}

func newOrder(in PlaceOrderInput, createdAt time.Time) *Order {
	o := &Order{
		ID:           strings.TrimSpace(in.ID),
		CustomerName: strings.TrimSpace(in.CustomerName),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		Notes:        in.Notes,
		Total:        in.Total,
		Lat:          in.Lat,
		Lng:          in.Lng,
		Status:       StatusReceived,
		CreatedAt:    createdAt,
		Items:        make([]*Line, 0, len(in.Items)),
	}
	for _, item := range in.Items {
		line := &Line{Name: item.Name, Quantity: item.Quantity, Price: item.TotalItemPrice}
		for _, extra := range item.Extras {
			line.Extras = append(line.Extras, &Extra{Name: extra.Name, Price: extra.Price})
		}
		o.Items = append(o.Items, line)
	}
	return o
}

// PlaceOrder persists the order and only then announces it as new_order.
func (s *service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "PlaceOrder"),
		zap.String("order_id", in.ID),
	)

	if err := validate(in); err != nil {
		log.Warn("rejected order", zap.Error(err))
		return nil, err
	}

	createdAt := s.now()
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		createdAt = *in.CreatedAt
	}
	o := newOrder(in, createdAt)

	id, err := s.repo.CreateOrder(ctx, o)
	if err != nil {
		return nil, err
	}
	o.DBID = id

	s.hub.Broadcast(realtime.EventNewOrder, o)
	log.Info("order placed", zap.Int64("db_id", id), zap.Float64("total", o.Total))
	return o, nil
}

// ChangeStatus moves an order to status and broadcasts what the engine
// decides for the move. Nothing is broadcast when the store rejects it.
func (s *service) ChangeStatus(ctx context.Context, token, status string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ChangeStatus"),
		zap.String("order_id", token),
	)

	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}

	o, err := s.repo.UpdateStatus(ctx, token, next, s.engine.Guard)
	if err != nil {
		log.Warn("status change failed", zap.String("status", string(next)), zap.Error(err))
		return nil, err
	}

	if s.engine.NeedsLines(o.Status) {
		lines, err := s.repo.GetOrderLines(ctx, o.DBID)
		if err != nil {
			return nil, fmt.Errorf("load lines for %s: %w", token, err)
		}
		o.Items = lines
	}

	for _, n := range s.engine.Events(o) {
		s.hub.Broadcast(n.Event, n.Payload)
	}

	log.Info("order status changed", zap.String("status", string(o.Status)))
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, filter Filter) ([]*Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

func (s *service) ClearOrders(ctx context.Context) (int64, error) {
	return s.repo.ClearOrders(ctx)
}
