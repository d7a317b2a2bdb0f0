package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPNotifier posts messages to an email gateway endpoint that answers
// {success, messageId, error}.
type HTTPNotifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPNotifier returns a notifier for endpoint with the given request timeout.
func NewHTTPNotifier(endpoint string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// Send posts msg. Non-2xx responses and success=false bodies are failure
// results; only transport errors are returned as errors.
func (n *HTTPNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", n.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var res Result
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil && resp.StatusCode < 300 {
			return Result{Success: false, Error: fmt.Sprintf("invalid gateway response: %v", err)}, nil
		}
	}
	if resp.StatusCode >= 300 {
		if res.Error == "" {
			res.Error = fmt.Sprintf("gateway returned %s", resp.Status)
		}
		res.Success = false
	}
	if !res.Success && res.Error == "" {
		res.Error = "delivery rejected"
	}
	return res, nil
}
