// Package pubsub publishes notifications as JSON events on a Google Cloud
// Pub/Sub topic, for deployments that feed leads into a downstream system
// instead of a mailbox.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/leadscout/leadscout/internal/lead"
)

// Event is the published wire form of a notification.
type Event struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	ReplyTo string `json:"reply_to,omitempty"`
	Sender  string `json:"sender,omitempty"`
}

// Notifier implements lead.Notifier on a Pub/Sub topic.
type Notifier struct {
	topic *pubsub.Topic
}

// New creates a Pub/Sub notifier for the given topic.
func New(client *pubsub.Client, topicID string) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("notify.topic is required")
	}
	return &Notifier{topic: client.Topic(topicID)}, nil
}

// Send publishes the message and waits for the server-assigned ID.
func (n *Notifier) Send(ctx context.Context, msg lead.Message) error {
	data, err := json.Marshal(Event{
		Subject: msg.Subject,
		Body:    msg.Body,
		ReplyTo: msg.ReplyTo,
		Sender:  msg.Credential.Identity,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Stop flushes pending publishes.
func (n *Notifier) Stop() {
	if n.topic != nil {
		n.topic.Stop()
	}
}
