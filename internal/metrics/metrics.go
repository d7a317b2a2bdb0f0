package metrics

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
)

// Recorder counts dispatch outcomes.
type Recorder interface {
	Count(ctx context.Context, trigger, outcome string)
}

// Nop discards everything.
type Nop struct{}

// Count does nothing.
func (Nop) Count(context.Context, string, string) {}

// CloudWatch publishes one "Dispatch" count per outcome with Trigger and
// Outcome dimensions. Publishing errors are logged, never returned.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *log.Logger
	nowFunc   func() time.Time
}

// NewCloudWatch returns a CloudWatch recorder writing to namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *log.Logger) *CloudWatch {
	if logger == nil {
		logger = log.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger, nowFunc: time.Now}
}

// Count records a single outcome.
func (c *CloudWatch) Count(ctx context.Context, trigger, outcome string) {
	now := c.nowFunc()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &c.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awsString("Dispatch"),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(1),
			Dimensions: []cwtypes.Dimension{
				{Name: awsString("Trigger"), Value: awsString(trigger)},
				{Name: awsString("Outcome"), Value: awsString(outcome)},
			},
		}},
	})
	if err != nil {
		c.logger.Printf("[metrics] put metric trigger=%s outcome=%s: %v", trigger, outcome, err)
	}
}

// Counter keeps counts in memory, keyed "trigger/outcome". Handy for status
// endpoints and tests.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
	next   Recorder
}

// NewCounter returns a Counter that also forwards to next (may be nil).
func NewCounter(next Recorder) *Counter {
	return &Counter{counts: map[string]int{}, next: next}
}

// Count increments trigger/outcome.
func (c *Counter) Count(ctx context.Context, trigger, outcome string) {
	c.mu.Lock()
	c.counts[key(trigger, outcome)]++
	c.mu.Unlock()
	if c.next != nil {
		c.next.Count(ctx, trigger, outcome)
	}
}

// Get returns the current count for trigger/outcome.
func (c *Counter) Get(trigger, outcome string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key(trigger, outcome)]
}

// Snapshot copies all counts.
func (c *Counter) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func key(trigger, outcome string) string { return fmt.Sprintf("%s/%s", trigger, outcome) }

func awsString(s string) *string { return &s }

func awsFloat(f float64) *float64 { return &f }
