package dispatch

import (
	"context"
	"errors"
	"log"

	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
	"github.com/imrishuroy/go-orderflow-notifier/internal/metrics"
	"github.com/imrishuroy/go-orderflow-notifier/internal/notifier"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
)

// defaultFailureMessage is recorded when the provider rejects a message
// without saying why.
const defaultFailureMessage = "delivery failed"

// LeaseStore is the part of the order store the controller needs.
type LeaseStore interface {
	AcquireLease(ctx context.Context, orderID string, trigger orders.Trigger, policy orders.LeasePolicy) (orders.Lease, bool, error)
	ReleaseLease(ctx context.Context, lease orders.Lease) error
	RecordSuccess(ctx context.Context, lease orders.Lease, messageID string) error
	RecordFailure(ctx context.Context, lease orders.Lease, errMsg string) error
}

// Deps are the collaborators shared by every controller of a session.
type Deps struct {
	Store     LeaseStore
	Config    settings.Source
	Notifier  notifier.Notifier
	Policy    orders.LeasePolicy
	Metrics   metrics.Recorder
	Logger    *log.Logger
	CacheSize int
}

func (d Deps) withDefaults() Deps {
	if d.Policy == (orders.LeasePolicy{}) {
		d.Policy = orders.DefaultLeasePolicy()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.CacheSize <= 0 {
		d.CacheSize = DefaultCacheSize
	}
	return d
}

// Controller runs the lease protocol for a single trigger.
type Controller struct {
	trigger Trigger
	deps    Deps
	sent    *SentCache
}

// NewController builds a controller for trigger.
func NewController(trigger Trigger, deps Deps) *Controller {
	deps = deps.withDefaults()
	return &Controller{trigger: trigger, deps: deps, sent: NewSentCache(deps.CacheSize)}
}

// Trigger returns the controller's trigger descriptor.
func (c *Controller) Trigger() Trigger { return c.trigger }

// Handle processes one change event. It never fails: every path ends in an
// Outcome and leaves the order document in a state future events can resume
// from.
func (c *Controller) Handle(ctx context.Context, ev feed.ChangeEvent) Outcome {
	out := c.handle(ctx, ev)
	c.deps.Metrics.Count(ctx, string(c.trigger.Kind), string(out.Kind))
	return out
}

func (c *Controller) handle(ctx context.Context, ev feed.ChangeEvent) Outcome {
	kind := c.trigger.Kind
	out := Outcome{OrderID: ev.OrderID, Trigger: kind}
	logger := c.deps.Logger

	if !c.trigger.Matches(ev.Order) {
		out.Kind = OutcomeNotMatched
		return out
	}

	// Step 1: local fast path
	if c.sent.Contains(ev.OrderID) {
		out.Kind = OutcomeSkippedKnownSent
		return out
	}
	if ev.Order.Notifications.Attempt(kind).State() == orders.StateSent {
		c.sent.Add(ev.OrderID)
		out.Kind = OutcomeSkippedKnownSent
		return out
	}

	// Step 2: config gate
	if !c.deps.Config.Current().Available() {
		logger.Printf("[dispatch] config unavailable, skip trigger=%s order=%s", kind, ev.OrderID)
		out.Kind = OutcomeConfigUnavailable
		return out
	}

	// Step 3: take the lease
	lease, ok, err := c.deps.Store.AcquireLease(ctx, ev.OrderID, kind, c.deps.Policy)
	if err != nil {
		logger.Printf("[dispatch] acquire lease trigger=%s order=%s: %v", kind, ev.OrderID, err)
		out.Kind, out.Err = OutcomeLeaseNotAcquired, err
		return out
	}
	if !ok {
		logger.Printf("[dispatch] lease not acquired trigger=%s order=%s", kind, ev.OrderID)
		out.Kind = OutcomeLeaseNotAcquired
		return out
	}

	// From here on the lease must end in a recorded transition even if the
	// caller goes away.
	recordCtx := context.WithoutCancel(ctx)

	// Step 4: config may have flipped while the lease was being taken
	cfg := c.deps.Config.Current()
	if !cfg.Available() || ctx.Err() != nil {
		if err := c.deps.Store.ReleaseLease(recordCtx, lease); err != nil {
			logger.Printf("[dispatch] release lease trigger=%s order=%s: %v", kind, ev.OrderID, err)
			out.Err = err
		}
		logger.Printf("[dispatch] lease released trigger=%s order=%s", kind, ev.OrderID)
		out.Kind = OutcomeLeaseReleased
		return out
	}

	// Step 5: send
	msg := c.trigger.Render(ev.Order, cfg.Address())
	res, sendErr := c.deps.Notifier.Send(ctx, msg)

	// Step 6: record
	if sendErr == nil && res.Success {
		out.Kind, out.MessageID = OutcomeSent, res.MessageID
		if err := c.deps.Store.RecordSuccess(recordCtx, lease, res.MessageID); err != nil && !errors.Is(err, orders.ErrAlreadySent) {
			logger.Printf("[dispatch] record success trigger=%s order=%s: %v", kind, ev.OrderID, err)
			out.Err = err
		}
		c.sent.Add(ev.OrderID)
		logger.Printf("[dispatch] sent trigger=%s order=%s message_id=%s", kind, ev.OrderID, res.MessageID)
		return out
	}

	msgErr := res.Error
	if sendErr != nil {
		msgErr = sendErr.Error()
	}
	if msgErr == "" {
		msgErr = defaultFailureMessage
	}
	out.Kind, out.Error = OutcomeFailed, msgErr
	if err := c.deps.Store.RecordFailure(recordCtx, lease, msgErr); err != nil {
		logger.Printf("[dispatch] record failure trigger=%s order=%s: %v", kind, ev.OrderID, err)
		out.Err = err
	}
	logger.Printf("[dispatch] failed trigger=%s order=%s error=%q", kind, ev.OrderID, msgErr)
	return out
}
