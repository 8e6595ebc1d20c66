package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outbound events.
const (
	EventNewOrder       = "new_order"
	EventOrderReady     = "order_ready_for_delivery"
	EventOrderDelivered = "order_delivered"
	EventStatusChanged  = "order_status_changed"
	EventMenuUpdated    = "menu_updated"
	EventPong           = "pong"
	EventError          = "error"
)

// Inbound events sent by clients.
const (
	InboundUpdateMenu      = "update_menu"
	InboundUpdateStatus    = "update_status"
	InboundConfirmDelivery = "confirm_delivery"
	InboundPing            = "ping"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleKitchen  Role = "kitchen"
	RoleDelivery Role = "delivery"
	RoleAdmin    Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

var roleAliases = map[string]Role{
	"":           RoleCustomer,
	"customer":   RoleCustomer,
	"cliente":    RoleCustomer,
	"kitchen":    RoleKitchen,
	"cocina":     RoleKitchen,
	"delivery":   RoleDelivery,
	"repartidor": RoleDelivery,
	"admin":      RoleAdmin,
}

func ParseRole(s string) (Role, error) {
	r, ok := roleAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// topics lists the roles subscribed to each outbound event. Events missing
// from the table reach every role.
var topics = map[string][]Role{
	EventNewOrder:      {RoleKitchen, RoleAdmin},
	EventOrderReady:    {RoleDelivery, RoleAdmin},
	EventStatusChanged: {RoleAdmin, RoleCustomer, RoleKitchen},
}

func (r Role) Subscribes(event string) bool {
	roles, scoped := topics[event]
	if !scoped {
		return true
	}
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

// Envelope is the wire format of every realtime message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// ClientError is an inbound handler failure whose message is safe to show the sender.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string { return e.Message }

func NewClientError(msg string) error {
	return &ClientError{Message: msg}
}

func publicMessage(err error) string {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "request failed"
}
