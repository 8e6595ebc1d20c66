package order

import "time"

type Status string

const (
	StatusReceived  Status = "received"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
)

// Order is a placed order. ID is the client-generated token; DBID is
// assigned by the store.
type Order struct {
	DBID         int64     `json:"db_id"`
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Notes        string    `json:"notes,omitempty"`
	Total        float64   `json:"total"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	Items        []*Line   `json:"items,omitempty"`
}

// Line is one ordered product. Name and Price are snapshots taken at
// order time, not references into the menu.
type Line struct {
	ID       int64    `json:"id,omitempty"`
	OrderID  int64    `json:"order_id,omitempty"`
	Name     string   `json:"name"`
	Quantity int      `json:"quantity"`
	Price    float64  `json:"total_item_price"`
	Extras   []*Extra `json:"extras,omitempty"`
}

type Extra struct {
	ID    int64   `json:"id,omitempty"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type PlaceOrderInput struct {
	ID           string      `json:"id"`
	CustomerName string      `json:"customer_name"`
	Phone        string      `json:"phone"`
	Address      string      `json:"address"`
	Notes        string      `json:"notes"`
	Total        float64     `json:"total"`
	Lat          *float64    `json:"lat"`
	Lng          *float64    `json:"lng"`
	Items        []LineInput `json:"items"`
	CreatedAt    *time.Time  `json:"created_at"`
}

type LineInput struct {
	Name           string       `json:"name"`
	Quantity       int          `json:"quantity"`
	TotalItemPrice float64      `json:"total_item_price"`
	Extras         []ExtraInput `json:"extras"`
}

type ExtraInput struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type StatusInput struct {
	Status string `json:"status"`
}

// Filter narrows ListOrders. A nil Status lists every order.
type Filter struct {
	Status *Status
}

// StatusChange is the payload of order_status_changed.
type StatusChange struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}
