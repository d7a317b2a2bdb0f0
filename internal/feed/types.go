package feed

import (
	"context"

	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// EventKind says why an event was emitted.
type EventKind string

const (
	KindInsert   EventKind = "insert"
	KindModify   EventKind = "modify"
	KindSnapshot EventKind = "snapshot" // replayed current state on (re)subscribe
)

// ChangeEvent is one add/modify notification for an order, carrying the full
// snapshot after the change. Events may repeat and may arrive in any order
// across different orders.
type ChangeEvent struct {
	OrderID string
	Kind    EventKind
	Order   orders.Order
	Origin  string // stream sequence number or source tag, for logs
}

// Predicate selects the orders a subscriber cares about.
type Predicate func(orders.Order) bool

// StatusIn matches orders whose status is one of statuses.
func StatusIn(statuses ...string) Predicate {
	return func(o orders.Order) bool {
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}
}

// Sink accepts events from a feed source.
type Sink interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Source hands out live, predicate-filtered event channels. The channel is
// closed once ctx is done.
type Source interface {
	Subscribe(ctx context.Context, pred Predicate) <-chan ChangeEvent
}
