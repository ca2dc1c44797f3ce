package lead

import (
	"context"
	"time"
)

// Classifier renders an accept/reject verdict on an item's text. Errors are
// handled by the filter chain's availability policy, not by callers.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Verdict is a classifier outcome with a human-readable reason.
type Verdict struct {
	Accept bool
	Reason string
}

// Notifier delivers an outbound message through one sender credential.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Message is an outbound notification.
type Message struct {
	Subject    string
	Body       string
	ReplyTo    string
	Credential Credential
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces token and message IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
