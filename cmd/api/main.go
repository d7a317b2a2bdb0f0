package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
	"github.com/imrishuroy/go-orderflow-notifier/internal/config"
	"github.com/imrishuroy/go-orderflow-notifier/internal/handlers"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	r := setupRouter(handlers.HandlerConfig{
		Orders:   orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable),
		Settings: settings.NewDynamoStore(clients.DynamoDB, cfg.SettingsTable),
		ConfigID: cfg.NotificationConfig,
	})

	// if RUN_LOCAL is set, run a local HTTP server for development.
	if cfg.RunLocal {
		log.Printf("running local server on %s", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
