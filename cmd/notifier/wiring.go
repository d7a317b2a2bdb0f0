package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/imrishuroy/go-orderflow-notifier/internal/aws"
	"github.com/imrishuroy/go-orderflow-notifier/internal/config"
	"github.com/imrishuroy/go-orderflow-notifier/internal/dispatch"
	"github.com/imrishuroy/go-orderflow-notifier/internal/feed"
	"github.com/imrishuroy/go-orderflow-notifier/internal/handlers"
	"github.com/imrishuroy/go-orderflow-notifier/internal/metrics"
	"github.com/imrishuroy/go-orderflow-notifier/internal/notifier"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
)

// orderStore is everything the host needs from the order store.
type orderStore interface {
	dispatch.LeaseStore
	feed.Lister
	handlers.OrderStore
}

// app holds the wired collaborators for one process.
type app struct {
	cfg      *config.Config
	logger   *log.Logger
	clients  *aws.AWSClients // nil when running locally
	orders   orderStore
	memory   *orders.MemoryStore // set when running locally
	settings settings.Store
	watcher  *settings.Watcher
	counter  *metrics.Counter
	notifier notifier.Notifier
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: log.New(os.Stderr, "", log.LstdFlags)}

	if cfg.RunLocal {
		a.memory = orders.NewMemoryStore()
		a.orders = a.memory
		a.settings = settings.NewMemoryStore()
		a.counter = metrics.NewCounter(nil)
	} else {
		clients, err := aws.NewAWSClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
		a.clients = clients
		a.orders = orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable)
		a.settings = settings.NewDynamoStore(clients.DynamoDB, cfg.SettingsTable)
		var next metrics.Recorder
		if cfg.MetricsNamespace != "" {
			next = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, a.logger)
		}
		a.counter = metrics.NewCounter(next)
	}

	n, err := a.newNotifier()
	if err != nil {
		return nil, err
	}
	a.notifier = n
	a.watcher = settings.NewWatcher(a.settings, cfg.NotificationConfig, cfg.ConfigPollInterval, a.logger)
	return a, nil
}

func (a *app) newNotifier() (notifier.Notifier, error) {
	switch a.cfg.NotifierMode {
	case config.NotifierHTTP:
		return notifier.NewHTTPNotifier(a.cfg.NotifierURL, a.cfg.NotifierTimeout), nil
	case config.NotifierSQS:
		if a.clients == nil {
			// no queue to talk to in local mode
			return &notifier.MemoryNotifier{Logger: a.logger}, nil
		}
		return notifier.NewSQSNotifier(aws.NewPublisher(a.clients.SQS, a.cfg.QueueURL)), nil
	case config.NotifierLog:
		return &notifier.MemoryNotifier{Logger: a.logger}, nil
	}
	return nil, fmt.Errorf("unknown notifier mode %q", a.cfg.NotifierMode)
}

func (a *app) newSession() *dispatch.Session {
	return dispatch.NewSession(dispatch.Deps{
		Store:    a.orders,
		Config:   a.watcher,
		Notifier: a.notifier,
		Policy:   a.cfg.LeasePolicy(),
		Metrics:  a.counter,
		Logger:   a.logger,
	}, nil, dispatch.WithMaxInFlight(a.cfg.MaxInFlight))
}

// triggerStatuses lists the statuses any built-in trigger fires on.
func triggerStatuses() []string {
	var out []string
	for _, t := range dispatch.DefaultTriggers() {
		out = append(out, t.Statuses...)
	}
	return out
}
