package notifier

import (
	"context"
	"time"
)

// Item is one line of the order summary.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

// OrderSummary is the slice of the order rendered into a notification.
type OrderSummary struct {
	OrderID      string    `json:"order_id"`
	Status       string    `json:"status"`
	CustomerName string    `json:"customer_name,omitempty"`
	TableLabel   string    `json:"table_label,omitempty"`
	Amount       float64   `json:"amount"`
	Items        []Item    `json:"items,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	PlacedAt     time.Time `json:"placed_at"`
}

// Message is a rendered outbound notification.
type Message struct {
	Trigger     string       `json:"trigger"`
	Subject     string       `json:"subject"`
	Summary     OrderSummary `json:"order_summary"`
	Destination string       `json:"destination"`
}

// Result is the provider's verdict on one delivery.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier delivers a message. Ordinary delivery failures (bad address,
// throttling, provider validation) come back as a Result with Success=false;
// the error return is reserved for requests that could not be made at all.
type Notifier interface {
	Send(ctx context.Context, msg Message) (Result, error)
}
