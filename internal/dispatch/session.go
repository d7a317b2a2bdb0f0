package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
)

// DefaultMaxInFlight bounds concurrent dispatches per session.
const DefaultMaxInFlight = 16

// ErrStarted is returned by Start on a session that is already running.
var ErrStarted = errors.New("dispatch session already started")

// Session is one running dispatch instance: a controller per trigger, each
// with its own feed subscription and sent cache. Any number of sessions may
// run against the same store.
type Session struct {
	ID          string
	controllers []*Controller
	logger      *log.Logger
	sem         chan struct{}
	onOutcome   func(Outcome)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// SessionOption tweaks a Session.
type SessionOption func(*Session)

// WithMaxInFlight caps concurrent dispatches.
func WithMaxInFlight(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithOutcomeHook calls fn after every handled event.
func WithOutcomeHook(fn func(Outcome)) SessionOption {
	return func(s *Session) { s.onOutcome = fn }
}

// NewSession builds a session over deps. With no triggers the built-in ones
// are used.
func NewSession(deps Deps, triggers []Trigger, opts ...SessionOption) *Session {
	deps = deps.withDefaults()
	if len(triggers) == 0 {
		triggers = DefaultTriggers()
	}
	s := &Session{
		ID:     uuid.NewString(),
		logger: deps.Logger,
		sem:    make(chan struct{}, DefaultMaxInFlight),
	}
	for _, t := range triggers {
		s.controllers = append(s.controllers, NewController(t, deps))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Controllers returns the session's controllers.
func (s *Session) Controllers() []*Controller { return s.controllers }

// Start subscribes every controller to src and dispatches events until Stop
// or ctx ends.
func (s *Session) Start(ctx context.Context, src feed.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, c := range s.controllers {
		ch := src.Subscribe(runCtx, c.trigger.Predicate())
		s.wg.Add(1)
		go s.consume(runCtx, c, ch)
	}
	s.logger.Printf("[dispatch] session=%s started triggers=%d", s.ID, len(s.controllers))
	return nil
}

// consume takes an in-flight slot before spawning each dispatch, so a full
// session stops reading ch and the publisher blocks.
func (s *Session) consume(ctx context.Context, c *Controller, ch <-chan feed.ChangeEvent) {
	defer s.wg.Done()
	for ev := range ch {
		if !s.acquire(ctx) {
			continue
		}
		s.wg.Add(1)
		go func(ev feed.ChangeEvent) {
			defer s.wg.Done()
			defer s.release()
			s.report(c.Handle(ctx, ev))
		}(ev)
	}
}

// acquire waits for a free in-flight slot. It reports false when ctx ended first.
func (s *Session) acquire(ctx context.Context) bool {
	select {
	case s.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) release() { <-s.sem }

// dispatch runs c.Handle once a slot is free. ok is false when ctx ended first.
func (s *Session) dispatch(ctx context.Context, c *Controller, ev feed.ChangeEvent) (Outcome, bool) {
	if !s.acquire(ctx) {
		return Outcome{}, false
	}
	defer s.release()
	return c.Handle(ctx, ev), true
}

func (s *Session) report(out Outcome) {
	if s.onOutcome != nil {
		s.onOutcome(out)
	}
}

// Handle runs a batch of events through every matching controller and waits
// for all of them. It is the entry point when the feed is pushed to us (a
// stream-triggered function) instead of subscribed to.
func (s *Session) Handle(ctx context.Context, events []feed.ChangeEvent) []Outcome {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out []Outcome
	)
	for _, ev := range events {
		for _, c := range s.controllers {
			if !c.trigger.Matches(ev.Order) {
				continue
			}
			wg.Add(1)
			go func(c *Controller, ev feed.ChangeEvent) {
				defer wg.Done()
				res, ok := s.dispatch(ctx, c, ev)
				if !ok {
					return
				}
				s.report(res)
				mu.Lock()
				out = append(out, res)
				mu.Unlock()
			}(c, ev)
		}
	}
	wg.Wait()
	return out
}

// Stop cancels all subscriptions and waits for in-flight dispatches to record
// their outcome.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Printf("[dispatch] session=%s stopped", s.ID)
}
