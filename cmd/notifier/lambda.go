package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-orderflow-notifier/internal/dispatch"
	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

var eventFile string

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve DynamoDB stream batches as a Lambda function",
	Long: `Runs as the Lambda handler attached to the orders table stream. With --event
the handler processes one DynamoDB event read from a file and exits.`,
	RunE: runLambda,
}

func init() {
	lambdaCmd.Flags().StringVar(&eventFile, "event", "", "process a single DynamoDB event JSON file and exit")
}

// StreamHandler feeds Lambda stream batches through a dispatch session.
type StreamHandler struct {
	session *dispatch.Session
	refresh func(ctx context.Context) error
	logger  *log.Logger
}

// NewStreamHandler returns a handler. refresh, when non-nil, reloads the
// notification config before each batch; the function may have been frozen
// for a long time since the last one.
func NewStreamHandler(session *dispatch.Session, refresh func(ctx context.Context) error, logger *log.Logger) *StreamHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &StreamHandler{session: session, refresh: refresh, logger: logger}
}

// Handle processes one batch. Store errors fail the batch so the runtime
// retries it; the lease protocol makes the retry safe. A lease lost to a
// reclaim is an outcome, not a fault, and does not fail the batch.
func (h *StreamHandler) Handle(ctx context.Context, ev events.DynamoDBEvent) error {
	h.logger.Printf("[lambda] received %d stream records", len(ev.Records))
	if h.refresh != nil {
		if err := h.refresh(ctx); err != nil {
			h.logger.Printf("[lambda] config refresh failed, using last known: %v", err)
		}
	}

	changes, err := feed.FromDynamoDBEvent(ev)
	if err != nil {
		return fmt.Errorf("decode stream batch: %w", err)
	}

	var errs []error
	for _, out := range h.session.Handle(ctx, changes) {
		if errors.Is(out.Err, orders.ErrLeaseLost) {
			h.logger.Printf("[lambda] lease lost trigger=%s order=%s", out.Trigger, out.OrderID)
			continue
		}
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", out.Trigger, out.OrderID, out.Err))
		}
	}
	return errors.Join(errs...)
}

func runLambda(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	h := NewStreamHandler(a.newSession(), a.watcher.Refresh, a.logger)

	if eventFile != "" {
		raw, err := os.ReadFile(eventFile)
		if err != nil {
			return fmt.Errorf("read event file: %w", err)
		}
		var ev events.DynamoDBEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode event file: %w", err)
		}
		return h.Handle(cmd.Context(), ev)
	}

	lambda.Start(h.Handle)
	return nil
}
