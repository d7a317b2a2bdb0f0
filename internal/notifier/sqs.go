package notifier

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
)

// Enqueuer sends a body to a queue and returns the message id.
type Enqueuer interface {
	Send(ctx context.Context, messageBody string, attributes map[string]string) (string, error)
}

// SQSNotifier hands messages to the email worker queue. The SQS message id
// becomes the notification message id.
type SQSNotifier struct {
	queue Enqueuer
}

// NewSQSNotifier wraps an SQS publisher.
func NewSQSNotifier(queue Enqueuer) *SQSNotifier {
	return &SQSNotifier{queue: queue}
}

// Send enqueues msg. Enqueue errors are transport failures.
func (n *SQSNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal message: %w", err)
	}
	id, err := n.queue.Send(ctx, string(body), map[string]string{
		"trigger":  msg.Trigger,
		"order_id": msg.Summary.OrderID,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, MessageID: id}, nil
}
