package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps orders in memory and applies the same lease rules as
// DynamoStore under a single mutex. Used for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	orders   map[string]Order
	watchers []func(Order)
	nowFunc  func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]Order),
		nowFunc: time.Now,
	}
}

// SetClock replaces the store clock.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFunc = now
}

// Watch registers fn to receive a snapshot after every committed write.
// fn runs outside the store lock.
func (s *MemoryStore) Watch(fn func(Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *MemoryStore) now() time.Time {
	return s.nowFunc().UTC().Truncate(time.Millisecond)
}

func cloneOrder(o Order) Order {
	n := make(Notifications, len(o.Notifications))
	for k, v := range o.Notifications {
		n[k] = v
	}
	o.Notifications = n
	return o
}

// commit stores o and returns the watchers to notify. Caller holds s.mu.
func (s *MemoryStore) commit(o Order) []func(Order) {
	s.orders[o.OrderID] = o
	return append([]func(Order){}, s.watchers...)
}

func notify(watchers []func(Order), o Order) {
	for _, w := range watchers {
		w(cloneOrder(o))
	}
}

// Create persists a new order.
func (s *MemoryStore) Create(ctx context.Context, order Order) error {
	s.mu.Lock()
	if _, exists := s.orders[order.OrderID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("order %s already exists", order.OrderID)
	}
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order = cloneOrder(order)
	watchers := s.commit(order)
	s.mu.Unlock()

	notify(watchers, order)
	return nil
}

// Get returns a copy of the order, or (nil, nil) if not found.
func (s *MemoryStore) Get(ctx context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	c := cloneOrder(o)
	return &c, nil
}

// UpdateStatus moves the order from expectedStatus to newStatus.
func (s *MemoryStore) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	s.mu.Lock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != expectedStatus {
		s.mu.Unlock()
		return ErrStatusMismatch
	}
	o = cloneOrder(o)
	o.Status = newStatus
	o.UpdatedAt = s.nowFunc()
	watchers := s.commit(o)
	s.mu.Unlock()

	notify(watchers, o)
	return nil
}

// ListByStatus returns the orders in status, ordered by id.
func (s *MemoryStore) ListByStatus(ctx context.Context, status string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

// AcquireLease applies the lease admission rules to the stored attempt.
func (s *MemoryStore) AcquireLease(ctx context.Context, orderID string, trigger Trigger, policy LeasePolicy) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return Lease{}, false, err
	}
	s.mu.Lock()
	o, ok := s.orders[orderID]
	now := s.now()
	if !ok || !policy.admits(o.Notifications.Attempt(trigger), now) {
		s.mu.Unlock()
		return Lease{}, false, nil
	}
	o = cloneOrder(o)
	o.Notifications[trigger.field(suffixReservedAt)] = FormatTime(now)
	delete(o.Notifications, trigger.field(suffixFailedAt))
	delete(o.Notifications, trigger.field(suffixError))
	watchers := s.commit(o)
	s.mu.Unlock()

	notify(watchers, o)
	return Lease{OrderID: orderID, Trigger: trigger, ReservedAt: now}, true, nil
}

func (s *MemoryStore) holds(o Order, lease Lease) bool {
	return o.Notifications[lease.Trigger.field(suffixReservedAt)] == FormatTime(lease.ReservedAt)
}

// ReleaseLease removes the caller's reservation.
func (s *MemoryStore) ReleaseLease(ctx context.Context, lease Lease) error {
	s.mu.Lock()
	o, ok := s.orders[lease.OrderID]
	if !ok || !s.holds(o, lease) {
		s.mu.Unlock()
		return ErrLeaseLost
	}
	o = cloneOrder(o)
	delete(o.Notifications, lease.Trigger.field(suffixReservedAt))
	watchers := s.commit(o)
	s.mu.Unlock()

	notify(watchers, o)
	return nil
}

// RecordSuccess sets sentAt and messageId and clears lease and failure fields.
func (s *MemoryStore) RecordSuccess(ctx context.Context, lease Lease, messageID string) error {
	s.mu.Lock()
	o, ok := s.orders[lease.OrderID]
	if !ok || !o.Notifications.Attempt(lease.Trigger).SentAt.IsZero() {
		s.mu.Unlock()
		return ErrAlreadySent
	}
	t := lease.Trigger
	o = cloneOrder(o)
	o.Notifications[t.field(suffixSentAt)] = FormatTime(s.now())
	o.Notifications[t.field(suffixMessageID)] = messageID
	delete(o.Notifications, t.field(suffixReservedAt))
	delete(o.Notifications, t.field(suffixFailedAt))
	delete(o.Notifications, t.field(suffixError))
	watchers := s.commit(o)
	s.mu.Unlock()

	notify(watchers, o)
	return nil
}

// RecordFailure stores failedAt/error and drops the caller's lease.
func (s *MemoryStore) RecordFailure(ctx context.Context, lease Lease, errMsg string) error {
	s.mu.Lock()
	o, ok := s.orders[lease.OrderID]
	if !ok || !o.Notifications.Attempt(lease.Trigger).SentAt.IsZero() || !s.holds(o, lease) {
		s.mu.Unlock()
		return ErrLeaseLost
	}
	t := lease.Trigger
	o = cloneOrder(o)
	o.Notifications[t.field(suffixFailedAt)] = FormatTime(s.now())
	o.Notifications[t.field(suffixError)] = errMsg
	delete(o.Notifications, t.field(suffixReservedAt))
	watchers := s.commit(o)
	s.mu.Unlock()

	notify(watchers, o)
	return nil
}
