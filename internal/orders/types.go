package orders

import (
	"errors"
	"time"
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusPreparing = "preparing"
	StatusReady     = "ready"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether s is one of the known order statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPreparing, StatusReady, StatusServed, StatusCancelled:
		return true
	}
	return false
}

// ErrStatusMismatch is returned when a conditional status transition fails.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Order represents the item stored in the orders DynamoDB table.
type Order struct {
	OrderID       string                   `dynamodbav:"order_id" json:"order_id"`                                // PK
	CustomerID    string                   `dynamodbav:"customer_id,omitempty" json:"customer_id,omitempty"`     // customer reference
	CustomerName  string                   `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"` // shown in alerts
	TableLabel    string                   `dynamodbav:"table_label,omitempty" json:"table_label,omitempty"`     // dine-in table or "takeaway"
	Status        string                   `dynamodbav:"status" json:"status"`
	Amount        float64                  `dynamodbav:"amount" json:"amount"`
	Items         []map[string]interface{} `dynamodbav:"items,omitempty" json:"items,omitempty"`
	Metadata      map[string]interface{}   `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	CancelReason  string                   `dynamodbav:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	Notifications Notifications            `dynamodbav:"notifications" json:"notifications"`
	CreatedAt     time.Time                `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time                `dynamodbav:"updated_at" json:"updated_at"`
}

// Trigger names a condition over order state that yields at most one outbound notification.
type Trigger string

const (
	TriggerNewOrder     Trigger = "new_order"
	TriggerCancellation Trigger = "cancellation"
)

// Triggers lists every known trigger kind.
var Triggers = []Trigger{TriggerNewOrder, TriggerCancellation}

// FieldPrefix is the namespace of the trigger's fields inside the notifications map.
func (t Trigger) FieldPrefix() string {
	switch t {
	case TriggerNewOrder:
		return "newOrder"
	case TriggerCancellation:
		return "cancellation"
	}
	return string(t)
}

// Notification attribute suffixes, joined with Trigger.FieldPrefix.
const (
	suffixReservedAt = "ReservedAt"
	suffixSentAt     = "SentAt"
	suffixMessageID  = "MessageId"
	suffixFailedAt   = "FailedAt"
	suffixError      = "Error"
)

func (t Trigger) field(suffix string) string { return t.FieldPrefix() + suffix }

// timeLayout is fixed-width UTC so that string comparison in condition
// expressions orders the same way as the instants do.
const timeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the persisted timestamp format.
func FormatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ParseTime parses a persisted timestamp. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// Notifications is the per-order notifications map, keyed by
// <triggerPrefix><Suffix> (e.g. newOrderSentAt).
type Notifications map[string]string

// Attempt decodes the trigger's fields. Unparseable timestamps are treated as absent.
func (n Notifications) Attempt(t Trigger) NotificationAttempt {
	a := NotificationAttempt{
		MessageID: n[t.field(suffixMessageID)],
		Error:     n[t.field(suffixError)],
	}
	a.ReservedAt, _ = ParseTime(n[t.field(suffixReservedAt)])
	a.SentAt, _ = ParseTime(n[t.field(suffixSentAt)])
	a.FailedAt, _ = ParseTime(n[t.field(suffixFailedAt)])
	return a
}

// Attempt state names.
const (
	StateUnsent   = "unsent"
	StateReserved = "reserved"
	StateSent     = "sent"
	StateFailed   = "failed"
)

// NotificationAttempt is the decoded view of one trigger's notification fields.
// Zero times mean absent.
type NotificationAttempt struct {
	ReservedAt time.Time `json:"reserved_at,omitempty"`
	SentAt     time.Time `json:"sent_at,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	FailedAt   time.Time `json:"failed_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// State reports where the attempt is in the Unsent -> Reserved -> Sent|Failed machine.
// A held lease wins over an older failure since reservation clears failures.
func (a NotificationAttempt) State() string {
	switch {
	case !a.SentAt.IsZero():
		return StateSent
	case !a.ReservedAt.IsZero():
		return StateReserved
	case !a.FailedAt.IsZero():
		return StateFailed
	}
	return StateUnsent
}

// LeasePolicy holds the two timeouts of the lease protocol.
type LeasePolicy struct {
	TTL      time.Duration // age after which an unresolved lease may be reclaimed
	Cooldown time.Duration // minimum gap after a recorded failure
}

// Default lease protocol timeouts.
const (
	DefaultLeaseTTL        = 10 * time.Minute
	DefaultFailureCooldown = 2 * time.Minute
)

// DefaultLeasePolicy returns the standard 10m TTL / 2m cooldown policy.
func DefaultLeasePolicy() LeasePolicy {
	return LeasePolicy{TTL: DefaultLeaseTTL, Cooldown: DefaultFailureCooldown}
}

// Lease is a held reservation for one (order, trigger) pair. ReservedAt is the
// exact timestamp written by the store and identifies the holder.
type Lease struct {
	OrderID    string
	Trigger    Trigger
	ReservedAt time.Time
}

// admits reports whether a new lease may be taken on a at now.
func (p LeasePolicy) admits(a NotificationAttempt, now time.Time) bool {
	if !a.SentAt.IsZero() {
		return false
	}
	if !a.FailedAt.IsZero() && now.Sub(a.FailedAt) < p.Cooldown {
		return false
	}
	if !a.ReservedAt.IsZero() && now.Sub(a.ReservedAt) < p.TTL {
		return false
	}
	return true
}
