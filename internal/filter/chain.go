// Package filter decides which captured items become leads: a recency gate,
// a classifier stage with an availability policy, then ordered reject-only
// override rules.
package filter

import (
	"context"
	"regexp"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/metrics"
)

const (
	// ReasonStale marks items with no recent-activity token.
	ReasonStale = "stale"
	// ReasonClassifierUnavailable marks items decided by the availability
	// policy rather than a real verdict.
	ReasonClassifierUnavailable = "classifier-unavailable"
)

var recentRe = regexp.MustCompile(`(?i)\b\d+\s*(?:h|hr|m|min)\b|just now`)

// Counters accumulates verdict tallies for one run.
type Counters struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Errors   int `json:"errors"`
}

// Chain evaluates items in fixed stage order. A nil classifier disables the
// classifier stage; overrides still apply.
type Chain struct {
	classifier lead.Classifier
	failOpen   bool
	rules      []Rule
	logger     *zap.Logger
}

// Config controls chain construction.
type Config struct {
	Classifier lead.Classifier
	FailOpen   bool
	Rules      []Rule
	Logger     *zap.Logger
}

// New builds a filter chain. Rules run in the given order; when none are
// provided the promo and location overrides are installed with defaults.
func New(cfg Config) *Chain {
	rules := cfg.Rules
	if rules == nil {
		rules = []Rule{NewPromoRule(nil, nil), NewLocationRule(nil)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		classifier: cfg.Classifier,
		failOpen:   cfg.FailOpen,
		rules:      rules,
		logger:     logger,
	}
}

// Evaluate runs the item through the chain and returns the decision.
// Counters, when non-nil, accumulate the outcome.
func (c *Chain) Evaluate(ctx context.Context, item lead.Item, counters *Counters) lead.FilterDecision {
	d, stage := c.evaluate(ctx, item, counters)
	if counters != nil {
		if d.Accept {
			counters.Accepted++
		} else {
			counters.Rejected++
		}
	}
	metrics.ObserveFilter(d.Accept, stage)
	return d
}

func (c *Chain) evaluate(ctx context.Context, item lead.Item, counters *Counters) (lead.FilterDecision, string) {
	if !recentRe.MatchString(item.Raw.Text) {
		return lead.FilterDecision{Accept: false, Reason: ReasonStale}, ReasonStale
	}

	decision := lead.FilterDecision{Accept: true}
	stage := "recency"
	if c.classifier != nil {
		verdict, err := c.classifier.Classify(ctx, item.Raw.Text)
		if err != nil {
			if counters != nil {
				counters.Errors++
			}
			c.logger.Warn("classifier unavailable",
				zap.String("fingerprint", string(item.Fingerprint)),
				zap.Bool("fail_open", c.failOpen),
				zap.Error(err),
			)
			decision = lead.FilterDecision{Accept: c.failOpen, Reason: ReasonClassifierUnavailable}
			stage = ReasonClassifierUnavailable
		} else {
			decision = lead.FilterDecision{Accept: verdict.Accept, Reason: verdict.Reason}
			stage = "classifier"
		}
	}

	// Overrides only ever veto.
	if decision.Accept {
		for _, rule := range c.rules {
			if rule.Reject(item.Raw.Text) {
				decision.Accept = false
				decision.Reason = appendReason(decision.Reason, rule.Name())
				stage = rule.Name()
				break
			}
		}
	}
	return decision, stage
}

func appendReason(base, name string) string {
	if base == "" {
		return name
	}
	return base + " | " + name
}
