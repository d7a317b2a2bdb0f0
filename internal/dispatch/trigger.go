package dispatch

import (
	"fmt"
	"strings"

	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
	"github.com/imrishuroy/go-orderflow-notifier/internal/notifier"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// Trigger describes one kind of notification: which orders it fires for and
// how the outbound message is rendered. The lease protocol itself is the same
// for every trigger.
type Trigger struct {
	Kind     orders.Trigger
	Statuses []string
	Render   func(o orders.Order, destination string) notifier.Message
}

// Predicate returns the feed predicate for this trigger.
func (t Trigger) Predicate() feed.Predicate {
	return feed.StatusIn(t.Statuses...)
}

// Matches reports whether o currently satisfies the trigger.
func (t Trigger) Matches(o orders.Order) bool {
	return t.Predicate()(o)
}

// NewOrderTrigger fires once for every order that reaches pending.
func NewOrderTrigger() Trigger {
	return Trigger{
		Kind:     orders.TriggerNewOrder,
		Statuses: []string{orders.StatusPending},
		Render: func(o orders.Order, destination string) notifier.Message {
			subject := fmt.Sprintf("New order %s", o.OrderID)
			if o.TableLabel != "" {
				subject += " (" + o.TableLabel + ")"
			}
			return notifier.Message{
				Trigger:     string(orders.TriggerNewOrder),
				Subject:     subject,
				Summary:     Summarize(o),
				Destination: destination,
			}
		},
	}
}

// CancellationTrigger fires once for every order that reaches cancelled.
func CancellationTrigger() Trigger {
	return Trigger{
		Kind:     orders.TriggerCancellation,
		Statuses: []string{orders.StatusCancelled},
		Render: func(o orders.Order, destination string) notifier.Message {
			subject := fmt.Sprintf("Order %s cancelled", o.OrderID)
			if reason := strings.TrimSpace(o.CancelReason); reason != "" {
				subject += ": " + reason
			}
			return notifier.Message{
				Trigger:     string(orders.TriggerCancellation),
				Subject:     subject,
				Summary:     Summarize(o),
				Destination: destination,
			}
		},
	}
}

// DefaultTriggers returns the built-in triggers.
func DefaultTriggers() []Trigger {
	return []Trigger{NewOrderTrigger(), CancellationTrigger()}
}

// Summarize builds the order summary carried by every message. Item maps are
// read leniently: name|title, quantity|qty, price.
func Summarize(o orders.Order) notifier.OrderSummary {
	s := notifier.OrderSummary{
		OrderID:      o.OrderID,
		Status:       o.Status,
		CustomerName: o.CustomerName,
		TableLabel:   o.TableLabel,
		Amount:       o.Amount,
		CancelReason: o.CancelReason,
		PlacedAt:     o.CreatedAt,
	}
	for _, raw := range o.Items {
		it := notifier.Item{
			Name:     firstString(raw, "name", "title"),
			Quantity: int(firstNumber(raw, "quantity", "qty")),
			Price:    firstNumber(raw, "price"),
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		s.Items = append(s.Items, it)
	}
	return s
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0
}
