package feed

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// Lister lists orders by status.
type Lister interface {
	ListByStatus(ctx context.Context, status string) ([]orders.Order, error)
}

// Backfill publishes the current orders in each status as snapshot events,
// mirroring the initial result set of a live query.
func Backfill(ctx context.Context, lister Lister, sink Sink, statuses ...string) (int, error) {
	n := 0
	for _, status := range statuses {
		list, err := lister.ListByStatus(ctx, status)
		if err != nil {
			return n, fmt.Errorf("backfill %s: %w", status, err)
		}
		for _, o := range list {
			ev := ChangeEvent{OrderID: o.OrderID, Kind: KindSnapshot, Order: o, Origin: "backfill"}
			if err := sink.Publish(ctx, ev); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
