package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		Trigger:     "new_order",
		Subject:     "New order ORD-001",
		Destination: "shop@x.com",
		Summary:     OrderSummary{OrderID: "ORD-001", Status: "pending", Amount: 12},
	}
}

func TestHTTPNotifier(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		want    Result
		wantErr bool
	}{
		{"success", http.StatusOK, `{"success":true,"messageId":"m-1"}`, Result{Success: true, MessageID: "m-1"}, false},
		{"provider rejects", http.StatusOK, `{"success":false,"error":"invalid address"}`, Result{Error: "invalid address"}, false},
		{"rate limited", http.StatusTooManyRequests, `{"success":false,"error":"Too many requests"}`, Result{Error: "Too many requests"}, false},
		{"bare 500", http.StatusInternalServerError, ``, Result{Error: "gateway returned 500 Internal Server Error"}, false},
		{"garbage body", http.StatusOK, `<html>`, Result{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Message
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			res, err := NewHTTPNotifier(srv.URL, time.Second).Send(context.Background(), sampleMessage())
			require.NoError(t, err)
			assert.Equal(t, "ORD-001", got.Summary.OrderID)
			assert.Equal(t, tc.want.Success, res.Success)
			if tc.name == "garbage body" {
				assert.Contains(t, res.Error, "invalid gateway response")
				return
			}
			assert.Equal(t, tc.want, res)
		})
	}
}

func TestHTTPNotifier_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewHTTPNotifier(srv.URL, time.Second).Send(context.Background(), sampleMessage())
	assert.Error(t, err)
}

type fakeQueue struct {
	body  string
	attrs map[string]string
	err   error
}

func (f *fakeQueue) Send(ctx context.Context, body string, attrs map[string]string) (string, error) {
	f.body, f.attrs = body, attrs
	return "sqs-1", f.err
}

func TestSQSNotifier(t *testing.T) {
	q := &fakeQueue{}
	res, err := NewSQSNotifier(q).Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, MessageID: "sqs-1"}, res)
	assert.Equal(t, "ORD-001", q.attrs["order_id"])
	assert.Contains(t, q.body, `"destination":"shop@x.com"`)

	q.err = errors.New("queue unavailable")
	_, err = NewSQSNotifier(q).Send(context.Background(), sampleMessage())
	assert.Error(t, err)
}

func TestMemoryNotifier_Script(t *testing.T) {
	m := NewMemoryNotifier()
	m.Script = func(call int, msg Message) (Result, error) {
		if call == 1 {
			return Result{Error: "Too many requests"}, nil
		}
		return Result{Success: true, MessageID: "m-2"}, nil
	}
	res, err := m.Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.False(t, res.Success)
	res, err = m.Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, m.Calls())
	assert.Len(t, m.Sent(), 1)
}
