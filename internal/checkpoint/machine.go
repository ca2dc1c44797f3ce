// Package checkpoint suspends the pipeline when the upstream source raises a
// human-verification challenge and coordinates the token-bound resume and
// remote-interaction protocol with the operator.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/artifacts"
	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/metrics"
	"github.com/leadscout/leadscout/internal/session"
)

// State is the checkpoint machine state.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateAborted State = "aborted"
)

var (
	// ErrChallengeTimeout is returned when a challenge stayed unresolved for
	// the whole wait window. The run aborts.
	ErrChallengeTimeout = errors.New("challenge wait timed out")

	// ErrInvalidToken rejects resume or interaction calls whose token does
	// not match the current unexpired pause token.
	ErrInvalidToken = errors.New("invalid or expired pause token")
)

// NotifyFunc delivers an out-of-band operator notification.
type NotifyFunc func(ctx context.Context, subject, body string) error

// Config controls the machine.
type Config struct {
	// TokenTTL bounds how long a minted pause token stays valid.
	TokenTTL time.Duration
	// WaitTimeout bounds how long a run stays paused before aborting.
	WaitTimeout time.Duration
	// PollInterval is the cadence for cancellation and challenge re-probes.
	PollInterval time.Duration
	// BaseURL is the externally reachable address used in resume links.
	BaseURL string
}

// Machine tracks the pause state for the single pipeline run.
type Machine struct {
	cfg      Config
	registry *session.Registry
	store    artifacts.Store
	notify   NotifyFunc
	clock    lead.Clock
	ids      lead.IDGenerator
	logger   *zap.Logger

	mu           sync.Mutex
	state        State
	token        string
	tokenExpires time.Time
	sessionID    string
	pausedAt     time.Time
	snapshot     artifacts.Snapshot
	resumeCh     chan string
}

// Status is a point-in-time view for the status surface.
type Status struct {
	State         State     `json:"state"`
	Token         string    `json:"token,omitempty"`
	TokenExpires  time.Time `json:"token_expires,omitempty"`
	PausedAt      time.Time `json:"paused_at,omitempty"`
	ScreenshotURI string    `json:"screenshot_uri,omitempty"`
	HTMLURI       string    `json:"html_uri,omitempty"`
	ResumeURL     string    `json:"resume_url,omitempty"`
}

// New builds a Machine. Zero durations fall back to 15m token TTL, 30m wait
// timeout and a 100ms poll interval.
func New(cfg Config, registry *session.Registry, store artifacts.Store, notify NotifyFunc, clock lead.Clock, ids lead.IDGenerator, logger *zap.Logger) *Machine {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		cfg:      cfg,
		registry: registry,
		store:    store,
		notify:   notify,
		clock:    clock,
		ids:      ids,
		logger:   logger,
		state:    StateRunning,
	}
}

// Guard probes the session for a challenge page. When one is present the
// machine pauses: it mints a token, captures artifacts, notifies the
// operator, then blocks until a valid resume signal arrives, the challenge
// clears on its own, the wait window elapses (ErrChallengeTimeout) or ctx is
// canceled.
func (m *Machine) Guard(ctx context.Context, sessionID string) error {
	driver, err := m.registry.Lookup(sessionID)
	if err != nil {
		return err
	}
	challenged, err := driver.IsChallengePage(ctx)
	if err != nil {
		return fmt.Errorf("challenge probe: %w", err)
	}
	if !challenged {
		return nil
	}
	return m.pause(ctx, sessionID, driver)
}

func (m *Machine) pause(ctx context.Context, sessionID string, driver session.Driver) error {
	token, err := m.ids.NewID()
	if err != nil {
		return fmt.Errorf("mint pause token: %w", err)
	}

	now := m.clock.Now()
	snap := m.captureSnapshot(ctx, driver, token)

	m.mu.Lock()
	// Minting a new token invalidates any prior one.
	m.state = StatePaused
	m.token = token
	m.tokenExpires = now.Add(m.cfg.TokenTTL)
	m.sessionID = sessionID
	m.pausedAt = now
	m.snapshot = snap
	m.resumeCh = make(chan string, 1)
	resumeCh := m.resumeCh
	m.mu.Unlock()

	metrics.ObservePauseTransition(string(StatePaused))
	m.logger.Warn("challenge detected, pipeline paused",
		zap.String("session", sessionID),
		zap.Time("token_expires", now.Add(m.cfg.TokenTTL)),
	)
	m.sendPauseNotification(ctx, token, snap)

	return m.wait(ctx, driver, resumeCh, now)
}

func (m *Machine) wait(ctx context.Context, driver session.Driver, resumeCh chan string, pausedAt time.Time) error {
	deadline := pausedAt.Add(m.cfg.WaitTimeout)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	// Re-probing the challenge on every tick would hammer the session, so
	// probes run on a coarser cadence than cancellation checks.
	probeEvery := 20
	tick := 0

	for {
		select {
		case <-ctx.Done():
			m.clear(StateRunning)
			return ctx.Err()
		case otp := <-resumeCh:
			if otp != "" {
				if err := m.submitOTP(ctx, driver, otp); err != nil {
					m.logger.Warn("otp submission failed", zap.Error(err))
				}
			}
			m.clear(StateRunning)
			metrics.ObservePauseTransition(string(StateRunning))
			m.logger.Info("pipeline resumed by operator")
			return nil
		case <-ticker.C:
			tick++
			if m.clock.Now().After(deadline) {
				m.clear(StateAborted)
				metrics.ObservePauseTransition(string(StateAborted))
				m.logger.Error("challenge never cleared, aborting run")
				return ErrChallengeTimeout
			}
			if tick%probeEvery != 0 {
				continue
			}
			challenged, err := driver.IsChallengePage(ctx)
			if err != nil {
				m.logger.Warn("challenge re-probe failed", zap.Error(err))
				continue
			}
			if !challenged {
				m.clear(StateRunning)
				metrics.ObservePauseTransition(string(StateRunning))
				m.logger.Info("challenge cleared upstream, resuming")
				return nil
			}
		}
	}
}

func (m *Machine) submitOTP(ctx context.Context, driver session.Driver, otp string) error {
	if err := driver.InjectInput(ctx, otp); err != nil {
		return err
	}
	return driver.SendKey(ctx, session.KeyEnter)
}

// Resume validates the token and signals the waiting run. A non-empty otp is
// typed into the challenge page before the run continues.
func (m *Machine) Resume(token, otp string) error {
	m.mu.Lock()
	if !m.tokenValidLocked(token) {
		m.mu.Unlock()
		return ErrInvalidToken
	}
	resumeCh := m.resumeCh
	m.mu.Unlock()

	select {
	case resumeCh <- otp:
	default:
		// A resume signal is already queued.
	}
	return nil
}

// Click performs a token-bound click at normalized coordinates and refreshes
// the artifact snapshot.
func (m *Machine) Click(ctx context.Context, token string, x, y float64) error {
	driver, err := m.interactionDriver(token)
	if err != nil {
		return err
	}
	if err := driver.DispatchClick(ctx, x, y); err != nil {
		return err
	}
	m.refreshSnapshot(ctx, driver, token)
	return nil
}

// Type performs a token-bound text injection and refreshes the snapshot.
func (m *Machine) Type(ctx context.Context, token, text string) error {
	driver, err := m.interactionDriver(token)
	if err != nil {
		return err
	}
	if err := driver.InjectInput(ctx, text); err != nil {
		return err
	}
	m.refreshSnapshot(ctx, driver, token)
	return nil
}

// Key performs a token-bound special-key dispatch and refreshes the snapshot.
func (m *Machine) Key(ctx context.Context, token string, key session.Key) error {
	if !session.ValidKey(key) {
		return fmt.Errorf("unsupported key %q", key)
	}
	driver, err := m.interactionDriver(token)
	if err != nil {
		return err
	}
	if err := driver.SendKey(ctx, key); err != nil {
		return err
	}
	m.refreshSnapshot(ctx, driver, token)
	return nil
}

// Snapshot returns the current status view. The token is included so the
// status UI can link the operator to the resume form.
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state}
	if m.state == StatePaused {
		st.Token = m.token
		st.TokenExpires = m.tokenExpires
		st.PausedAt = m.pausedAt
		st.ScreenshotURI = m.snapshot.ScreenshotURI
		st.HTMLURI = m.snapshot.HTMLURI
		st.ResumeURL = m.resumeURL(m.token)
	}
	return st
}

// ResetForRun puts the machine back to Running at the start of a run.
func (m *Machine) ResetForRun() {
	m.clear(StateRunning)
}

func (m *Machine) interactionDriver(token string) (session.Driver, error) {
	m.mu.Lock()
	if !m.tokenValidLocked(token) {
		m.mu.Unlock()
		return nil, ErrInvalidToken
	}
	sessionID := m.sessionID
	m.mu.Unlock()
	return m.registry.Lookup(sessionID)
}

func (m *Machine) tokenValidLocked(token string) bool {
	return m.state == StatePaused &&
		token != "" &&
		token == m.token &&
		m.clock.Now().Before(m.tokenExpires)
}

func (m *Machine) clear(next State) {
	m.mu.Lock()
	m.state = next
	m.token = ""
	m.tokenExpires = time.Time{}
	m.resumeCh = nil
	m.mu.Unlock()
}

func (m *Machine) captureSnapshot(ctx context.Context, driver session.Driver, token string) artifacts.Snapshot {
	art, err := driver.CaptureArtifacts(ctx)
	if err != nil {
		m.logger.Warn("artifact capture failed", zap.Error(err))
		return artifacts.Snapshot{}
	}
	snap, err := artifacts.Save(ctx, m.store, token, art)
	if err != nil {
		m.logger.Warn("artifact save failed", zap.Error(err))
		return artifacts.Snapshot{}
	}
	return snap
}

func (m *Machine) refreshSnapshot(ctx context.Context, driver session.Driver, token string) {
	snap := m.captureSnapshot(ctx, driver, token)
	m.mu.Lock()
	if m.token == token {
		m.snapshot = snap
	}
	m.mu.Unlock()
}

func (m *Machine) sendPauseNotification(ctx context.Context, token string, snap artifacts.Snapshot) {
	if m.notify == nil {
		return
	}
	subject := "Verification challenge: pipeline paused"
	body := fmt.Sprintf(
		"The source raised a human-verification challenge and the pipeline is paused.\n\n"+
			"Resume: %s\nScreenshot: %s\nPage: %s\n\n"+
			"The token expires at %s; the run aborts if the challenge is not resolved in time.",
		m.resumeURL(token),
		snap.ScreenshotURI,
		snap.HTMLURI,
		m.clock.Now().Add(m.cfg.TokenTTL).UTC().Format(time.RFC3339),
	)
	if err := m.notify(ctx, subject, body); err != nil {
		m.logger.Warn("pause notification failed", zap.Error(err))
	}
}

func (m *Machine) resumeURL(token string) string {
	if m.cfg.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/resume?token=%s", m.cfg.BaseURL, token)
}
