// Package memory records notifications in-memory for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/leadscout/leadscout/internal/lead"
)

// Notifier collects sent messages. A non-nil Err makes every send fail,
// and FailFor makes sends fail for specific subjects.
type Notifier struct {
	mu      sync.Mutex
	sent    []lead.Message
	Err     error
	FailFor map[string]error
}

// New creates an empty recording notifier.
func New() *Notifier {
	return &Notifier{}
}

// Send records the message, or returns the configured error.
func (n *Notifier) Send(_ context.Context, msg lead.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	if err, ok := n.FailFor[msg.Subject]; ok {
		return err
	}
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (n *Notifier) Sent() []lead.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]lead.Message(nil), n.sent...)
}
