package settings

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Source yields the current config snapshot.
type Source interface {
	Current() NotificationConfig
}

// Watcher keeps a live copy of one config document by polling the store.
// A missing document is the same as a disabled config; read errors keep
// the last known value.
type Watcher struct {
	store    Store
	configID string
	interval time.Duration
	logger   *log.Logger

	current atomic.Pointer[NotificationConfig]

	mu        sync.Mutex
	listeners []func(NotificationConfig)
}

// NewWatcher builds a watcher for configID. It starts with a disabled config
// until Refresh or Run loads the document.
func NewWatcher(store Store, configID string, interval time.Duration, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	w := &Watcher{store: store, configID: configID, interval: interval, logger: logger}
	w.current.Store(&NotificationConfig{ConfigID: configID})
	return w
}

// Current returns the latest snapshot.
func (w *Watcher) Current() NotificationConfig {
	return *w.current.Load()
}

// OnChange registers fn to run whenever the snapshot changes.
func (w *Watcher) OnChange(fn func(NotificationConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Refresh reloads the document once.
func (w *Watcher) Refresh(ctx context.Context) error {
	cfg, err := w.store.Get(ctx, w.configID)
	if errors.Is(err, ErrNotFound) {
		cfg, err = NotificationConfig{ConfigID: w.configID}, nil
	}
	if err != nil {
		return err
	}
	w.replace(cfg)
	return nil
}

func (w *Watcher) replace(cfg NotificationConfig) {
	prev := w.current.Swap(&cfg)
	if prev != nil && prev.Equal(cfg) {
		return
	}
	w.logger.Printf("[settings] config=%s enabled=%t destination=%q available=%t",
		w.configID, cfg.Enabled, cfg.Address(), cfg.Available())

	w.mu.Lock()
	listeners := append([]func(NotificationConfig){}, w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if err := w.Refresh(ctx); err != nil {
		w.logger.Printf("[settings] initial load failed: %v", err)
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("[settings] watcher exiting")
			return
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil && ctx.Err() == nil {
				w.logger.Printf("[settings] refresh failed: %v", err)
			}
		}
	}
}

// Static is a settable in-process Source.
type Static struct {
	v atomic.Pointer[NotificationConfig]
}

// NewStatic returns a Source holding cfg.
func NewStatic(cfg NotificationConfig) *Static {
	s := &Static{}
	s.Set(cfg)
	return s
}

// Set replaces the current value.
func (s *Static) Set(cfg NotificationConfig) { s.v.Store(&cfg) }

// Current returns the current value.
func (s *Static) Current() NotificationConfig { return *s.v.Load() }
