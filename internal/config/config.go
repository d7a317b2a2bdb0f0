package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
)

// Notifier modes.
const (
	NotifierSQS  = "sqs"
	NotifierHTTP = "http"
	NotifierLog  = "log"
)

// Config is the process configuration shared by the notifier host and the
// admin API.
type Config struct {
	AWSRegion          string
	EndpointOverride   string
	OrdersTable        string
	SettingsTable      string
	NotificationConfig string
	StreamARN          string
	StreamStart        string
	NotifierMode       string
	QueueURL           string
	NotifierURL        string
	NotifierTimeout    time.Duration
	LeaseTTL           time.Duration
	FailureCooldown    time.Duration
	ConfigPollInterval time.Duration
	StreamPollInterval time.Duration
	BackfillOnStart    bool
	MaxInFlight        int
	MetricsNamespace   string
	HTTPAddr           string
	RunLocal           bool
}

func defaults(v *viper.Viper) {
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ENDPOINT_OVERRIDE", "")
	v.SetDefault("ORDERS_TABLE", "orders")
	v.SetDefault("SETTINGS_TABLE", "settings")
	v.SetDefault("NOTIFICATION_CONFIG_ID", "notifications")
	v.SetDefault("ORDERS_STREAM_ARN", "")
	v.SetDefault("STREAM_START", "TRIM_HORIZON")
	v.SetDefault("NOTIFIER_MODE", NotifierSQS)
	v.SetDefault("NOTIFY_QUEUE_URL", "")
	v.SetDefault("NOTIFIER_URL", "")
	v.SetDefault("NOTIFIER_TIMEOUT", "10s")
	v.SetDefault("LEASE_TTL", "10m")
	v.SetDefault("FAILURE_COOLDOWN", "2m")
	v.SetDefault("CONFIG_POLL_INTERVAL", "15s")
	v.SetDefault("STREAM_POLL_INTERVAL", "1s")
	v.SetDefault("BACKFILL_ON_START", true)
	v.SetDefault("MAX_IN_FLIGHT", 16)
	v.SetDefault("METRICS_NAMESPACE", "OrderNotifications")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("RUN_LOCAL", false)
}

// Load reads configuration from the environment. When path is non-empty the
// file is read first and environment variables override it. Load does not
// validate; see Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		AWSRegion:          v.GetString("AWS_REGION"),
		EndpointOverride:   v.GetString("AWS_ENDPOINT_OVERRIDE"),
		OrdersTable:        v.GetString("ORDERS_TABLE"),
		SettingsTable:      v.GetString("SETTINGS_TABLE"),
		NotificationConfig: v.GetString("NOTIFICATION_CONFIG_ID"),
		StreamARN:          v.GetString("ORDERS_STREAM_ARN"),
		StreamStart:        strings.ToUpper(v.GetString("STREAM_START")),
		NotifierMode:       strings.ToLower(v.GetString("NOTIFIER_MODE")),
		QueueURL:           v.GetString("NOTIFY_QUEUE_URL"),
		NotifierURL:        v.GetString("NOTIFIER_URL"),
		NotifierTimeout:    v.GetDuration("NOTIFIER_TIMEOUT"),
		LeaseTTL:           v.GetDuration("LEASE_TTL"),
		FailureCooldown:    v.GetDuration("FAILURE_COOLDOWN"),
		ConfigPollInterval: v.GetDuration("CONFIG_POLL_INTERVAL"),
		StreamPollInterval: v.GetDuration("STREAM_POLL_INTERVAL"),
		BackfillOnStart:    v.GetBool("BACKFILL_ON_START"),
		MaxInFlight:        v.GetInt("MAX_IN_FLIGHT"),
		MetricsNamespace:   v.GetString("METRICS_NAMESPACE"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		RunLocal:           v.GetBool("RUN_LOCAL"),
	}
	return cfg, nil
}

// Validate checks the settings the notifier host depends on. Local runs need
// no AWS resources.
func (c *Config) Validate() error {
	if c.LeaseTTL <= 0 || c.FailureCooldown <= 0 {
		return fmt.Errorf("LEASE_TTL and FAILURE_COOLDOWN must be positive")
	}
	if c.StreamStart != "LATEST" && c.StreamStart != "TRIM_HORIZON" {
		return fmt.Errorf("STREAM_START must be LATEST or TRIM_HORIZON, got %q", c.StreamStart)
	}
	switch c.NotifierMode {
	case NotifierSQS:
		if c.QueueURL == "" && !c.RunLocal {
			return fmt.Errorf("NOTIFY_QUEUE_URL is required when NOTIFIER_MODE=sqs")
		}
	case NotifierHTTP:
		if c.NotifierURL == "" {
			return fmt.Errorf("NOTIFIER_URL is required when NOTIFIER_MODE=http")
		}
	case NotifierLog:
	default:
		return fmt.Errorf("unknown NOTIFIER_MODE %q", c.NotifierMode)
	}
	return nil
}

// LeasePolicy returns the configured lease timeouts.
func (c *Config) LeasePolicy() orders.LeasePolicy {
	return orders.LeasePolicy{TTL: c.LeaseTTL, Cooldown: c.FailureCooldown}
}
