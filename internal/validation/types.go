package validation

import "time"

// Item represents a single order line item.
type Item struct {
	SKU      string  `json:"sku" validate:"required"`            // stock keeping unit
	Name     string  `json:"name" validate:"required"`           // shown in notifications
	Quantity int     `json:"quantity" validate:"required,min=1"` // must be >= 1
	Price    float64 `json:"price" validate:"required,gt=0"`     // price per unit
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerID   string                 `json:"customer_id" validate:"required"`      // business id for customer
	CustomerName string                 `json:"customer_name,omitempty"`              // shown in notifications
	TableLabel   string                 `json:"table_label,omitempty"`                // table or "takeaway"
	Items        []Item                 `json:"items" validate:"required,min=1,dive"` // at least one item
	Amount       float64                `json:"amount" validate:"required,gt=0"`      // total amount client claims
	Metadata     map[string]interface{} `json:"metadata,omitempty"`                   // optional free-form metadata
	CreatedAt    *time.Time             `json:"created_at,omitempty"`                 // optional client timestamp
}

// UpdateStatusRequest is the payload for PATCH /orders/:id/status.
type UpdateStatusRequest struct {
	From string `json:"from" validate:"required,order_status"`
	To   string `json:"to" validate:"required,order_status,nefield=From"`
}

// UpdateConfigRequest is the payload for PUT /notification-config.
type UpdateConfigRequest struct {
	Enabled     *bool  `json:"enabled" validate:"required"`
	Destination string `json:"destination" validate:"omitempty,email"`
}
