package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-orderflow-notifier/internal/dispatch"
	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
	"github.com/imrishuroy/go-orderflow-notifier/internal/handlers"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the long-lived dispatcher",
	Long: `Subscribes to the orders stream (or the in-memory store with RUN_LOCAL=true),
watches the notification config and dispatches notifications until interrupted.`,
	RunE: runDispatcher,
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	return a.run(ctx)
}

func (a *app) run(ctx context.Context) error {
	if err := a.watcher.Refresh(ctx); err != nil {
		a.logger.Printf("[notifier] initial config load failed: %v", err)
	}
	go a.watcher.Run(ctx)

	hub := feed.NewHub(a.cfg.MaxInFlight)
	session := a.newSession()
	if err := session.Start(ctx, hub); err != nil {
		return err
	}
	defer session.Stop()

	if err := a.startFeed(ctx, hub); err != nil {
		return err
	}

	// Orders skipped while notifications were unavailable get another chance
	// once the config becomes usable again.
	a.watcher.OnChange(func(c settings.NotificationConfig) {
		if c.Available() {
			go a.backfill(ctx, hub)
		}
	})
	if a.cfg.BackfillOnStart {
		go a.backfill(ctx, hub)
	}

	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.router(session)}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Printf("[notifier] session=%s listening on %s", session.ID, a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	a.logger.Printf("[notifier] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startFeed connects the hub to its event source.
func (a *app) startFeed(ctx context.Context, hub *feed.Hub) error {
	if a.memory != nil {
		a.memory.Watch(func(o orders.Order) {
			// Watch callbacks run on the writer's goroutine, which may be a
			// dispatch holding a hub slot.
			go func() {
				_ = hub.Publish(ctx, feed.ChangeEvent{OrderID: o.OrderID, Kind: feed.KindModify, Order: o, Origin: "memory"})
			}()
		})
		return nil
	}
	if a.cfg.StreamARN == "" {
		return errors.New("ORDERS_STREAM_ARN is required outside local mode")
	}
	poller := feed.NewStreamPoller(a.clients.Streams, a.cfg.StreamARN, a.cfg.StreamStart, a.cfg.StreamPollInterval, a.logger)
	go func() {
		_ = poller.Run(ctx, hub)
	}()
	return nil
}

func (a *app) backfill(ctx context.Context, hub *feed.Hub) {
	n, err := feed.Backfill(ctx, a.orders, hub, triggerStatuses()...)
	if err != nil && ctx.Err() == nil {
		a.logger.Printf("[notifier] backfill failed after %d orders: %v", n, err)
		return
	}
	a.logger.Printf("[notifier] backfill replayed %d orders", n)
}

func (a *app) router(session *dispatch.Session) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", func(c *gin.Context) {
		cfg := a.watcher.Current()
		c.JSON(http.StatusOK, gin.H{
			"session":   session.ID,
			"available": cfg.Available(),
			"outcomes":  a.counter.Snapshot(),
		})
	})

	if a.memory != nil {
		// local runs have no other way to create orders or change the config
		handlers.RegisterRoutes(r, handlers.HandlerConfig{
			Orders:   a.orders,
			Settings: a.settings,
			ConfigID: a.cfg.NotificationConfig,
			Logger:   a.logger,
		})
	}
	return r
}
