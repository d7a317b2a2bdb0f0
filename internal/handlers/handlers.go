package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
	"github.com/imrishuroy/go-orderflow-notifier/internal/validation"
)

// OrderStore is the subset of the order store used by the admin API.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error
}

// HandlerConfig groups dependencies for the admin handlers.
type HandlerConfig struct {
	Orders   OrderStore
	Settings settings.Store
	ConfigID string
	Logger   *log.Logger
}

// AttemptView is the API shape of one trigger's notification state.
type AttemptView struct {
	State string `json:"state"`
	orders.NotificationAttempt
}

// RegisterRoutes registers the order and notification config routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		now := time.Now().UTC()
		if req.CreatedAt != nil {
			now = req.CreatedAt.UTC()
		}
		order := orders.Order{
			OrderID:      uuid.NewString(),
			CustomerID:   req.CustomerID,
			CustomerName: req.CustomerName,
			TableLabel:   req.TableLabel,
			Status:       orders.StatusPending,
			Amount:       req.Amount,
			Metadata:     req.Metadata,
			CreatedAt:    now,
		}
		items := make([]map[string]interface{}, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, map[string]interface{}{
				"sku":      it.SKU,
				"name":     it.Name,
				"quantity": it.Quantity,
				"price":    it.Price,
			})
		}
		order.Items = items

		if err := cfg.Orders.Create(ctx, order); err != nil {
			logger.Printf("[api] create order: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "detail": err.Error()})
			return
		}
		logger.Printf("[api] created order=%s", order.OrderID)
		c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
		c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID, "status": order.Status})
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		order, ok := loadOrder(c, cfg.Orders)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, order)
	})

	r.PATCH("/orders/:id/status", func(c *gin.Context) {
		var req validation.UpdateStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		id := c.Param("id")
		err := cfg.Orders.UpdateStatus(c.Request.Context(), id, req.From, req.To)
		switch {
		case errors.Is(err, orders.ErrStatusMismatch):
			c.JSON(http.StatusConflict, gin.H{"error": "status_mismatch", "order_id": id})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed", "detail": err.Error()})
			return
		}
		logger.Printf("[api] order=%s status %s -> %s", id, req.From, req.To)
		c.JSON(http.StatusOK, gin.H{"order_id": id, "status": req.To})
	})

	r.GET("/orders/:id/notifications", func(c *gin.Context) {
		order, ok := loadOrder(c, cfg.Orders)
		if !ok {
			return
		}
		out := make(map[orders.Trigger]AttemptView, len(orders.Triggers))
		for _, t := range orders.Triggers {
			a := order.Notifications.Attempt(t)
			out[t] = AttemptView{State: a.State(), NotificationAttempt: a}
		}
		c.JSON(http.StatusOK, gin.H{"order_id": order.OrderID, "notifications": out})
	})

	r.GET("/notification-config", func(c *gin.Context) {
		nc, err := cfg.Settings.Get(c.Request.Context(), cfg.ConfigID)
		if errors.Is(err, settings.ErrNotFound) {
			nc, err = settings.NotificationConfig{ConfigID: cfg.ConfigID}, nil
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "config_read_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"config": nc, "available": nc.Available()})
	})

	r.PUT("/notification-config", func(c *gin.Context) {
		var req validation.UpdateConfigRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		nc := settings.NotificationConfig{
			ConfigID:    cfg.ConfigID,
			Enabled:     *req.Enabled,
			Destination: req.Destination,
		}
		if err := cfg.Settings.Put(c.Request.Context(), nc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "config_write_failed", "detail": err.Error()})
			return
		}
		logger.Printf("[api] notification config=%s enabled=%t", cfg.ConfigID, nc.Enabled)
		c.JSON(http.StatusOK, gin.H{"config": nc, "available": nc.Available()})
	})
}

func loadOrder(c *gin.Context, store OrderStore) (*orders.Order, bool) {
	id := c.Param("id")
	order, err := store.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read_failed", "detail": err.Error()})
		return nil, false
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "order_id": id})
		return nil, false
	}
	return order, true
}
