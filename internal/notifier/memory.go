package notifier

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// MemoryNotifier records messages in memory. Script, when set, decides the
// outcome of each send.
type MemoryNotifier struct {
	mu     sync.Mutex
	sent   []Message
	calls  int
	Script func(call int, msg Message) (Result, error)
	Logger *log.Logger
}

// NewMemoryNotifier returns a notifier that accepts every message.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

// Send records msg and returns the scripted or a successful result.
func (m *MemoryNotifier) Send(ctx context.Context, msg Message) (Result, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	script := m.Script
	m.mu.Unlock()

	res, err := Result{Success: true, MessageID: uuid.NewString()}, error(nil)
	if script != nil {
		res, err = script(call, msg)
	}
	if err == nil && res.Success {
		m.mu.Lock()
		m.sent = append(m.sent, msg)
		m.mu.Unlock()
		if m.Logger != nil {
			m.Logger.Printf("[notifier] %s -> %s: %s", msg.Trigger, msg.Destination, msg.Subject)
		}
	}
	return res, err
}

// Sent returns a copy of the successfully delivered messages.
func (m *MemoryNotifier) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Calls returns the number of Send invocations.
func (m *MemoryNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
