// Package runner owns the single pipeline run: session lifecycle, the
// per-source scan loop, filtering, dedup and the hand-off to delivery.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/checkpoint"
	"github.com/leadscout/leadscout/internal/dedup"
	"github.com/leadscout/leadscout/internal/dispatch"
	"github.com/leadscout/leadscout/internal/extract"
	"github.com/leadscout/leadscout/internal/filter"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/session"
)

// ErrAlreadyRunning rejects a start while a run is in progress.
var ErrAlreadyRunning = errors.New("a run is already in progress")

// State is the externally visible run state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateAborted State = "aborted"
)

// SessionFactory creates a signed-in browser session.
type SessionFactory func(ctx context.Context) (session.Driver, error)

// SenderProvider supplies the current credential pool.
type SenderProvider interface {
	Senders(ctx context.Context) ([]lead.Credential, error)
}

// Params tunes one run.
type Params struct {
	// Keywords restricts collection to items mentioning at least one
	// keyword. Empty means no restriction.
	Keywords []string
	// HoldMode collects leads and contacts without sending anything.
	HoldMode bool
}

// Config controls the runner.
type Config struct {
	Sources []lead.Source
	// MaxSessionRestarts bounds recreation attempts after transient
	// source failures.
	MaxSessionRestarts int
}

// SourceSummary reports per-source progress.
type SourceSummary struct {
	Label    string `json:"label"`
	Scanned  int    `json:"scanned"`
	Accepted int    `json:"accepted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// Status is the thread-safe view of the current or last run.
type Status struct {
	State      State             `json:"state"`
	Message    string            `json:"message,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at,omitempty"`
	Found      int               `json:"found"`
	Sent       int               `json:"sent"`
	Duplicates int               `json:"duplicates"`
	Failed     int               `json:"failed"`
	Filter     filter.Counters   `json:"filter"`
	Sources    []SourceSummary   `json:"sources,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	HoldMode   bool              `json:"hold_mode,omitempty"`
	Checkpoint checkpoint.Status `json:"checkpoint"`
}

// Runner drives the pipeline. At most one run is active at a time.
type Runner struct {
	cfg        Config
	factory    SessionFactory
	registry   *session.Registry
	machine    *checkpoint.Machine
	resolver   *identity.Resolver
	chain      *filter.Chain
	store      dedup.Store
	dispatcher *dispatch.Dispatcher
	senders    SenderProvider
	clock      lead.Clock
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	status  Status
}

// New builds a Runner.
func New(
	cfg Config,
	factory SessionFactory,
	registry *session.Registry,
	machine *checkpoint.Machine,
	resolver *identity.Resolver,
	chain *filter.Chain,
	store dedup.Store,
	dispatcher *dispatch.Dispatcher,
	senders SenderProvider,
	clock lead.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		factory:    factory,
		registry:   registry,
		machine:    machine,
		resolver:   resolver,
		chain:      chain,
		store:      store,
		dispatcher: dispatcher,
		senders:    senders,
		clock:      clock,
		logger:     logger,
		status:     Status{State: StateIdle},
	}
}

// Start launches a run on its own goroutine. It returns ErrAlreadyRunning
// while a run is active.
func (r *Runner) Start(params Params) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.cancel = cancel
	r.status = Status{
		State:     StateRunning,
		StartedAt: r.clock.Now(),
		HoldMode:  params.HoldMode,
		Message:   "starting",
	}
	r.mu.Unlock()

	go r.run(ctx, params)
	return nil
}

// Stop cancels the active run. It is a no-op when nothing is running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Snapshot returns the current status, merged with the checkpoint view.
func (r *Runner) Snapshot() Status {
	r.mu.Lock()
	st := r.status
	r.mu.Unlock()

	st.Checkpoint = r.machine.Snapshot()
	if st.State == StateRunning && st.Checkpoint.State == checkpoint.StatePaused {
		st.State = StatePaused
	}
	return st
}

func (r *Runner) run(ctx context.Context, params Params) {
	metrics.SetRunActive(true)
	final := "completed"
	defer func() {
		metrics.SetRunActive(false)
		metrics.ObserveRun(final)
		r.mu.Lock()
		r.running = false
		r.cancel = nil
		r.status.FinishedAt = r.clock.Now()
		if r.status.State == StateRunning {
			r.status.State = StateIdle
		}
		r.mu.Unlock()
	}()

	r.machine.ResetForRun()

	sess, sessID, err := r.openSession(ctx)
	if err != nil {
		final = r.finishWithError(ctx, "session start failed", err)
		return
	}
	defer func() {
		r.registry.Remove(sessID)
		if err := sess.Close(context.Background()); err != nil {
			r.logger.Warn("session close failed", zap.Error(err))
		}
	}()

	batch, storeDown := r.scan(ctx, &sess, &sessID, params)
	if ctx.Err() != nil {
		final = "canceled"
		r.setMessage("stopped by user")
		r.setState(StateIdle)
		return
	}
	if r.aborted() {
		final = "aborted"
		return
	}

	r.setFound(len(batch))

	if params.HoldMode {
		r.setMessage(fmt.Sprintf("hold mode: %d leads collected, nothing sent", len(batch)))
		return
	}
	if storeDown {
		final = "store-unavailable"
		r.setMessage("dedup store unavailable, deliveries suppressed")
		return
	}
	if len(batch) == 0 {
		r.setMessage("no new leads")
		return
	}

	pool, err := r.senders.Senders(ctx)
	if err != nil {
		final = r.finishWithError(ctx, "loading sender pool failed", err)
		return
	}
	out := r.dispatcher.Deliver(ctx, batch, pool)

	r.mu.Lock()
	r.status.Sent = out.Delivered
	r.status.Duplicates = out.Duplicates
	r.status.Failed = out.Failed
	if out.StoreUnavailable {
		r.status.LastError = dedup.ErrStoreUnavailable.Error()
	}
	r.status.Message = fmt.Sprintf("delivered %d of %d leads", out.Delivered, len(batch))
	r.mu.Unlock()

	if out.StoreUnavailable {
		final = "store-unavailable"
	}
}

// scan walks every configured source and returns the accepted, not yet
// admitted items. storeDown reports a dedup outage observed during the scan.
func (r *Runner) scan(ctx context.Context, sess *session.Driver, sessID *string, params Params) ([]lead.Item, bool) {
	var (
		batch     []lead.Item
		storeDown bool
		counters  filter.Counters
	)

	for _, src := range r.cfg.Sources {
		if ctx.Err() != nil {
			return batch, storeDown
		}
		summary := SourceSummary{Label: src.Label}

		if err := r.machine.Guard(ctx, *sessID); err != nil {
			if errors.Is(err, checkpoint.ErrChallengeTimeout) {
				r.setAborted(err)
				return batch, storeDown
			}
			if ctx.Err() != nil {
				return batch, storeDown
			}
			summary.Error = err.Error()
			r.appendSummary(summary)
			continue
		}

		items, err := r.navigateAndExtract(ctx, sess, sessID, src)
		if err != nil {
			if ctx.Err() != nil {
				return batch, storeDown
			}
			summary.Error = err.Error()
			r.setError(err)
			r.appendSummary(summary)
			continue
		}
		summary.Scanned = len(items)
		metrics.ObserveItemsScanned(src.Label, len(items))
		r.setMessage(fmt.Sprintf("scanning %s: %d items", src.Label, len(items)))

		for _, raw := range items {
			if ctx.Err() != nil {
				return batch, storeDown
			}
			raw.SourceLabel = src.Label
			item, ok := r.prepare(ctx, raw, params, &counters)
			if !ok {
				summary.Skipped++
				continue
			}

			seen, err := r.store.Contains(ctx, item.Fingerprint)
			if err != nil {
				// Unknown delivery state: fail closed and stop collecting.
				storeDown = true
				r.setError(err)
				r.appendSummary(summary)
				r.setCounters(counters)
				return batch, storeDown
			}
			if seen {
				summary.Skipped++
				continue
			}
			summary.Accepted++
			batch = append(batch, item)
		}
		r.appendSummary(summary)
	}
	r.setCounters(counters)
	return batch, storeDown
}

// prepare resolves identity, cleans and extracts, applies the keyword
// restriction and runs the filter chain.
func (r *Runner) prepare(ctx context.Context, raw lead.RawItem, params Params, counters *filter.Counters) (lead.Item, bool) {
	item := lead.Item{
		Raw:         raw,
		Fingerprint: r.resolver.Resolve(raw),
		CleanedText: extract.Clean(raw.Text),
	}
	item.Role = extract.Role(item.CleanedText)

	if len(params.Keywords) > 0 && !matchesKeyword(raw.Text, item.CleanedText, params.Keywords) {
		return item, false
	}

	item.Decision = r.chain.Evaluate(ctx, item, counters)
	if !item.Decision.Accept {
		return item, false
	}

	// Prefer contacts from the cleaned text to avoid harvesting commenters.
	item.Emails, item.Phones = extract.Contacts(item.CleanedText)
	if len(item.Emails) == 0 && len(item.Phones) == 0 {
		item.Emails, item.Phones = extract.Contacts(raw.Text)
	}
	anchorEmails, anchorPhones := extract.AnchorContacts(raw.Anchors)
	item.Emails = mergeUnique(item.Emails, anchorEmails)
	item.Phones = mergeUnique(item.Phones, anchorPhones)
	return item, true
}

// navigateAndExtract loads the source page, recreating the session a bounded
// number of times on transient failures.
func (r *Runner) navigateAndExtract(ctx context.Context, sess *session.Driver, sessID *string, src lead.Source) ([]lead.RawItem, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxSessionRestarts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt > 0 {
			r.logger.Warn("recreating session after transient failure",
				zap.String("source", src.Label),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			r.registry.Remove(*sessID)
			if err := (*sess).Close(ctx); err != nil {
				r.logger.Warn("session close failed", zap.Error(err))
			}
			fresh, freshID, err := r.openSession(ctx)
			if err != nil {
				return nil, err
			}
			*sess = fresh
			*sessID = freshID
		}
		if err := (*sess).Navigate(ctx, src.URL); err != nil {
			lastErr = err
			continue
		}
		items, err := (*sess).ExtractItems(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		return items, nil
	}
	return nil, fmt.Errorf("source %s unreachable after %d attempts: %w", src.Label, r.cfg.MaxSessionRestarts+1, lastErr)
}

func (r *Runner) openSession(ctx context.Context) (session.Driver, string, error) {
	sess, err := r.factory(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("open session: %w", err)
	}
	return sess, r.registry.Register(sess), nil
}

func matchesKeyword(rawText, cleanedText string, keywords []string) bool {
	low := strings.ToLower(rawText + "\n" + cleanedText)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(low, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, v := range base {
		seen[v] = struct{}{}
	}
	for _, v := range extra {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		base = append(base, v)
	}
	return base
}

func (r *Runner) finishWithError(ctx context.Context, msg string, err error) string {
	if ctx.Err() != nil {
		r.setMessage("stopped by user")
		return "canceled"
	}
	r.logger.Error(msg, zap.Error(err))
	r.mu.Lock()
	r.status.LastError = err.Error()
	r.status.Message = msg
	r.mu.Unlock()
	return "failed"
}

func (r *Runner) setAborted(err error) {
	r.mu.Lock()
	r.status.State = StateAborted
	r.status.LastError = err.Error()
	r.status.Message = "run aborted: verification challenge unresolved"
	r.mu.Unlock()
}

func (r *Runner) aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State == StateAborted
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.status.State = s
	r.mu.Unlock()
}

func (r *Runner) setMessage(msg string) {
	r.mu.Lock()
	r.status.Message = msg
	r.mu.Unlock()
}

func (r *Runner) setError(err error) {
	r.mu.Lock()
	r.status.LastError = err.Error()
	r.mu.Unlock()
}

func (r *Runner) setFound(n int) {
	r.mu.Lock()
	r.status.Found = n
	r.mu.Unlock()
}

func (r *Runner) setCounters(c filter.Counters) {
	r.mu.Lock()
	r.status.Filter = c
	r.mu.Unlock()
}

func (r *Runner) appendSummary(s SourceSummary) {
	r.mu.Lock()
	r.status.Sources = append(r.status.Sources, s)
	r.mu.Unlock()
}
