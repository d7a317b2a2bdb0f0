package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-orderflow-notifier/internal/config"
	"github.com/imrishuroy/go-orderflow-notifier/internal/dispatch"
	"github.com/imrishuroy/go-orderflow-notifier/internal/notifier"
	"github.com/imrishuroy/go-orderflow-notifier/internal/orders"
	"github.com/imrishuroy/go-orderflow-notifier/internal/settings"
)

var quiet = log.New(io.Discard, "", 0)

func pendingImage(id, status string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"order_id":      events.NewStringAttribute(id),
		"status":        events.NewStringAttribute(status),
		"amount":        events.NewNumberAttribute("12"),
		"notifications": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{}),
	}
}

func TestStreamHandler_DuplicateRecords(t *testing.T) {
	store := orders.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, orders.Order{OrderID: "ORD-001", Status: orders.StatusPending}))
	mem := notifier.NewMemoryNotifier()
	session := dispatch.NewSession(dispatch.Deps{
		Store:    store,
		Config:   settings.NewStatic(settings.NotificationConfig{Enabled: true, Destination: "shop@x.com"}),
		Notifier: mem,
		Logger:   quiet,
	}, nil)

	refreshed := 0
	h := NewStreamHandler(session, func(context.Context) error { refreshed++; return nil }, quiet)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventID: "1", EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: pendingImage("ORD-001", "pending")}},
		{EventID: "2", EventName: "MODIFY", Change: events.DynamoDBStreamRecord{NewImage: pendingImage("ORD-001", "pending")}},
	}}

	require.NoError(t, h.Handle(ctx, ev))
	require.NoError(t, h.Handle(ctx, ev))
	assert.Equal(t, 1, mem.Calls())
	assert.Equal(t, 2, refreshed)
}

func TestStreamHandler_BadRecordFailsBatch(t *testing.T) {
	session := dispatch.NewSession(dispatch.Deps{
		Store:    orders.NewMemoryStore(),
		Config:   settings.NewStatic(settings.NotificationConfig{}),
		Notifier: notifier.NewMemoryNotifier(),
		Logger:   quiet,
	}, nil)
	h := NewStreamHandler(session, nil, quiet)
	err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventID: "1", EventName: "INSERT"},
	}})
	assert.Error(t, err)
}

// failingRecorder stands in for a store whose failure write is rejected.
type failingRecorder struct {
	*orders.MemoryStore
	err error
}

func (f failingRecorder) RecordFailure(ctx context.Context, lease orders.Lease, errMsg string) error {
	return f.err
}

func TestStreamHandler_LeaseLostDoesNotFailBatch(t *testing.T) {
	for name, tc := range map[string]struct {
		storeErr error
		wantErr  bool
	}{
		"lease lost":  {storeErr: fmt.Errorf("record failure: %w", orders.ErrLeaseLost)},
		"store fault": {storeErr: errors.New("throttled"), wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := orders.NewMemoryStore()
			require.NoError(t, store.Create(ctx, orders.Order{OrderID: "ORD-040", Status: orders.StatusPending}))
			mem := notifier.NewMemoryNotifier()
			mem.Script = func(int, notifier.Message) (notifier.Result, error) {
				return notifier.Result{Error: "mailbox full"}, nil
			}
			session := dispatch.NewSession(dispatch.Deps{
				Store:    failingRecorder{MemoryStore: store, err: tc.storeErr},
				Config:   settings.NewStatic(settings.NotificationConfig{Enabled: true, Destination: "shop@x.com"}),
				Notifier: mem,
				Logger:   quiet,
			}, nil)
			h := NewStreamHandler(session, nil, quiet)

			err := h.Handle(ctx, events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
				{EventID: "1", EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: pendingImage("ORD-040", "pending")}},
			}})
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, mem.Calls())
		})
	}
}

func localConfig() *config.Config {
	return &config.Config{
		RunLocal:           true,
		NotifierMode:       config.NotifierLog,
		NotificationConfig: "notifications",
		StreamStart:        "LATEST",
		LeaseTTL:           orders.DefaultLeaseTTL,
		FailureCooldown:    orders.DefaultFailureCooldown,
		ConfigPollInterval: time.Hour,
		BackfillOnStart:    true,
		MaxInFlight:        4,
		HTTPAddr:           "127.0.0.1:0",
	}
}

func TestLocalRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, localConfig())
	require.NoError(t, err)
	a.logger = quiet
	mem, ok := a.notifier.(*notifier.MemoryNotifier)
	require.True(t, ok)

	require.NoError(t, a.settings.Put(ctx, settings.NotificationConfig{ConfigID: "notifications", Enabled: true, Destination: "shop@x.com"}))
	require.NoError(t, a.memory.Create(ctx, orders.Order{OrderID: "ORD-100", Status: orders.StatusPending}))

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool { return len(mem.Sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.memory.UpdateStatus(ctx, "ORD-100", orders.StatusPending, orders.StatusCancelled))
	require.Eventually(t, func() bool { return len(mem.Sent()) == 2 }, 3*time.Second, 10*time.Millisecond)

	sent := mem.Sent()
	assert.Equal(t, "new_order", sent[0].Trigger)
	assert.Equal(t, "cancellation", sent[1].Trigger)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRouter(t *testing.T) {
	a, err := newApp(context.Background(), localConfig())
	require.NoError(t, err)
	session := a.newSession()

	for _, path := range []string{"/health", "/status", "/notification-config"} {
		w := httptest.NewRecorder()
		a.router(session).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestNewNotifier(t *testing.T) {
	a := &app{cfg: localConfig(), logger: quiet}
	a.cfg.NotifierMode = config.NotifierHTTP
	a.cfg.NotifierURL = "http://gateway.local"
	n, err := a.newNotifier()
	require.NoError(t, err)
	assert.IsType(t, &notifier.HTTPNotifier{}, n)

	a.cfg.NotifierMode = "pigeon"
	_, err = a.newNotifier()
	assert.Error(t, err)
}

func TestTriggerStatuses(t *testing.T) {
	assert.ElementsMatch(t, []string{orders.StatusPending, orders.StatusCancelled}, triggerStatuses())
}
