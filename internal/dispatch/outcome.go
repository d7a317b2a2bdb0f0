package dispatch

import "github.com/imrishuroy/go-orderflow-notifier/internal/orders"

// OutcomeKind classifies what happened to one change event.
type OutcomeKind string

const (
	OutcomeNotMatched        OutcomeKind = "not_matched"
	OutcomeSkippedKnownSent  OutcomeKind = "skipped_known_sent"
	OutcomeConfigUnavailable OutcomeKind = "config_unavailable"
	OutcomeLeaseNotAcquired  OutcomeKind = "lease_not_acquired"
	OutcomeLeaseReleased     OutcomeKind = "lease_released"
	OutcomeSent              OutcomeKind = "sent"
	OutcomeFailed            OutcomeKind = "failed"
)

// Outcome is the result of handling one event for one trigger. Err carries
// store errors that were logged and absorbed; the delivery error message of a
// failed send is in Error.
type Outcome struct {
	Kind      OutcomeKind
	OrderID   string
	Trigger   orders.Trigger
	MessageID string
	Error     string
	Err       error
}

// Dispatched reports whether the notifier was called.
func (o Outcome) Dispatched() bool {
	return o.Kind == OutcomeSent || o.Kind == OutcomeFailed
}
