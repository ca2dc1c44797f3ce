// Package dispatch delivers accepted leads. Sends rotate through a
// credential pool and each delivery is recorded in the dedup store; send
// succeeds first, then admission, so a crash between the two yields a
// duplicate send rather than a silent drop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/metrics"
)

// Config controls the dispatcher.
type Config struct {
	// SendDelay is the pause between consecutive sends.
	SendDelay time.Duration
}

// Outcome summarizes one delivery batch.
type Outcome struct {
	Delivered  int
	Duplicates int
	Failed     int
	// Suppressed counts items skipped after the dedup store became
	// unavailable mid-batch.
	Suppressed int
	// StoreUnavailable is set when delivery stopped early because admission
	// state could not be recorded.
	StoreUnavailable bool
}

// Dispatcher sends lead notifications.
type Dispatcher struct {
	cfg      Config
	notifier lead.Notifier
	store    dedup.Store
	clock    lead.Clock
	logger   *zap.Logger
}

// New builds a Dispatcher.
func New(cfg Config, notifier lead.Notifier, store dedup.Store, clock lead.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		notifier: notifier,
		store:    store,
		clock:    clock,
		logger:   logger,
	}
}

// Deliver sends each item using the credential pool in round-robin order.
// A failed send leaves the item unadmitted so the next run retries it; an
// unavailable store suppresses all remaining sends in the batch.
func (d *Dispatcher) Deliver(ctx context.Context, items []lead.Item, pool []lead.Credential) Outcome {
	var out Outcome
	if len(pool) == 0 {
		d.logger.Warn("no sender credentials configured, skipping delivery")
		out.Failed = len(items)
		return out
	}

	for i, item := range items {
		if ctx.Err() != nil {
			return out
		}
		if out.StoreUnavailable {
			out.Suppressed++
			metrics.ObserveSend("suppressed")
			continue
		}

		cred := pool[i%len(pool)]
		msg, payload, err := buildMessage(item, cred, d.clock.Now())
		if err != nil {
			d.logger.Error("build message", zap.String("fingerprint", string(item.Fingerprint)), zap.Error(err))
			out.Failed++
			metrics.ObserveSend("failed")
			continue
		}

		if err := d.notifier.Send(ctx, msg); err != nil {
			// Not admitted: the item stays eligible for the next run.
			d.logger.Warn("send failed",
				zap.String("fingerprint", string(item.Fingerprint)),
				zap.String("sender", cred.Identity),
				zap.Error(err),
			)
			out.Failed++
			metrics.ObserveSend("failed")
			continue
		}

		admitted, err := d.store.TryAdmit(ctx, lead.DeliveryRecord{
			Fingerprint: item.Fingerprint,
			Payload:     payload,
			CreatedAt:   d.clock.Now(),
		})
		switch {
		case err != nil:
			out.StoreUnavailable = errors.Is(err, dedup.ErrStoreUnavailable)
			d.logger.Error("admission failed after send",
				zap.String("fingerprint", string(item.Fingerprint)),
				zap.Error(err),
			)
			out.Failed++
			metrics.ObserveSend("failed")
		case admitted:
			out.Delivered++
			metrics.ObserveSend("delivered")
		default:
			// Another sender won the race; the send already happened, so
			// this still counts as success.
			out.Duplicates++
			metrics.ObserveSend("duplicate")
		}

		if i < len(items)-1 && d.cfg.SendDelay > 0 {
			if !sleepPreemptible(ctx, d.cfg.SendDelay) {
				return out
			}
		}
	}
	return out
}

// buildMessage renders the outbound notification and its stored payload.
func buildMessage(item lead.Item, cred lead.Credential, now time.Time) (lead.Message, []byte, error) {
	p := lead.DeliveryPayload{
		SourceLabel: item.Raw.SourceLabel,
		SourceURL:   item.Raw.SourceURL,
		CleanedText: item.CleanedText,
		RawText:     item.Raw.Text,
		Reason:      item.Decision.Reason,
		Role:        item.Role,
		Emails:      item.Emails,
		Phones:      item.Phones,
	}
	payload, err := lead.EncodePayload(p)
	if err != nil {
		return lead.Message{}, nil, err
	}

	subject := "New lead"
	if item.Role != "" {
		subject = "New lead: " + item.Role
	}
	subject = fmt.Sprintf("%s [%s] %s", subject, item.Fingerprint.Short(), now.UTC().Format("2006-01-02 15:04"))

	body := fmt.Sprintf(
		"Source: %s\nURL: %s\n\n%s\n\nFilter: %s\nEmails: %s\nPhones: %s\n\n--- raw capture ---\n%s\n",
		p.SourceLabel,
		p.SourceURL,
		p.CleanedText,
		p.Reason,
		joinOrDash(p.Emails),
		joinOrDash(p.Phones),
		p.RawText,
	)

	return lead.Message{
		Subject:    subject,
		Body:       body,
		ReplyTo:    item.ReplyTo(),
		Credential: cred,
	}, payload, nil
}

// sleepPreemptible waits for d in sub-second slices so cancellation is
// observed quickly. It reports false when ctx was canceled.
func sleepPreemptible(ctx context.Context, d time.Duration) bool {
	const slice = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > slice {
			remaining = slice
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}

func joinOrDash(vals []string) string {
	if len(vals) == 0 {
		return "-"
	}
	out := vals[0]
	for _, v := range vals[1:] {
		out += ", " + v
	}
	return out
}
