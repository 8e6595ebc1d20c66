package order

import (
	"fmt"
	"strings"

	"pizzeria-be/internal/realtime"
)

var statusAliases = map[string]Status{
	"received":   StatusReceived,
	"recibido":   StatusReceived,
	"pendiente":  StatusReceived,
	"pending":    StatusReceived,
	"preparing":  StatusPreparing,
	"preparando": StatusPreparing,
	"ready":      StatusReady,
	"listo":      StatusReady,
	"delivered":  StatusDelivered,
	"entregado":  StatusDelivered,
}

var statusRank = map[Status]int{
	StatusReceived:  0,
	StatusPreparing: 1,
	StatusReady:     2,
	StatusDelivered: 3,
}

// ParseStatus normalizes s to one of the lifecycle states.
func ParseStatus(s string) (Status, error) {
	st, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

type Policy string

const (
	PolicyPermissive Policy = "permissive"
	PolicyStrict     Policy = "strict"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPermissive, nil
	case PolicyPermissive, PolicyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown transition policy %q", s)
	}
}

// Guard decides whether an order may move from one status to another. It is
// evaluated by the store while the order row is locked.
type Guard func(from, to Status) error

// Notification is one realtime event a transition emits.
type Notification struct {
	Event   string
	Payload any
}

// Engine applies the transition policy and decides which events a
// transition broadcasts.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	if policy == "" {
		policy = PolicyPermissive
	}
	return &Engine{policy: policy}
}

func (e *Engine) Policy() Policy { return e.policy }

// Guard under the strict policy only allows forward moves. Re-applying the
// current status is accepted so a repeated "delivered" stays harmless.
func (e *Engine) Guard(from, to Status) error {
	if e.policy != PolicyStrict || from == to {
		return nil
	}
	if from == StatusDelivered || statusRank[to] < statusRank[from] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// NeedsLines reports whether the events for a move to status carry the
// order's lines.
func (e *Engine) NeedsLines(to Status) bool {
	return to == StatusReady
}

// Events lists the broadcasts for o after it moved to o.Status, in emission order.
func (e *Engine) Events(o *Order) []Notification {
	var out []Notification
	switch o.Status {
	case StatusReady:
		out = append(out, Notification{Event: realtime.EventOrderReady, Payload: o})
	case StatusDelivered:
		out = append(out, Notification{Event: realtime.EventOrderDelivered, Payload: o.ID})
	}
	return append(out, Notification{
		Event:   realtime.EventStatusChanged,
		Payload: StatusChange{ID: o.ID, Status: o.Status},
	})
}
