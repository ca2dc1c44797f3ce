package runner

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	artmem "github.com/leadscout/leadscout/internal/artifacts/memory"
	"github.com/leadscout/leadscout/internal/checkpoint"
	"github.com/leadscout/leadscout/internal/dedup"
	dedupmem "github.com/leadscout/leadscout/internal/dedup/memory"
	"github.com/leadscout/leadscout/internal/dispatch"
	"github.com/leadscout/leadscout/internal/filter"
	"github.com/leadscout/leadscout/internal/identity"
	"github.com/leadscout/leadscout/internal/lead"
	notifymem "github.com/leadscout/leadscout/internal/notify/memory"
	"github.com/leadscout/leadscout/internal/session"
)

type fakeDriver struct {
	mu      sync.Mutex
	items   []lead.RawItem
	navErr  error
	navHang bool
	navs    int
	closed  bool
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	d.navs++
	hang, err := d.navHang, d.navErr
	d.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (d *fakeDriver) ExtractItems(context.Context) ([]lead.RawItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items, nil
}

func (d *fakeDriver) IsChallengePage(context.Context) (bool, error) { return false, nil }

func (d *fakeDriver) CaptureArtifacts(context.Context) (session.Artifacts, error) {
	return session.Artifacts{}, nil
}

func (d *fakeDriver) InjectInput(context.Context, string) error { return nil }

func (d *fakeDriver) DispatchClick(context.Context, float64, float64) error { return nil }

func (d *fakeDriver) SendKey(context.Context, session.Key) error { return nil }

func (d *fakeDriver) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type testClock struct{}

func (testClock) Now() time.Time { return time.Now() }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return "tok-" + strconv.Itoa(s.n), nil
}

type staticSenders struct{ pool []lead.Credential }

func (s staticSenders) Senders(context.Context) ([]lead.Credential, error) {
	return s.pool, nil
}

type brokenStore struct{ *dedupmem.Store }

func (brokenStore) Contains(context.Context, lead.Fingerprint) (bool, error) {
	return false, fmt.Errorf("%w: connection refused", dedup.ErrStoreUnavailable)
}

func newTestRunner(t *testing.T, drivers []*fakeDriver, store dedup.Store, params Config) (*Runner, *notifymem.Notifier) {
	t.Helper()
	registry := session.NewRegistry()
	machine := checkpoint.New(
		checkpoint.Config{},
		registry,
		artmem.New(),
		func(context.Context, string, string) error { return nil },
		testClock{},
		&seqIDs{},
		zap.NewNop(),
	)
	notifier := notifymem.New()
	dispatcher := dispatch.New(dispatch.Config{}, notifier, store, testClock{}, zap.NewNop())

	var mu sync.Mutex
	next := 0
	factory := func(context.Context) (session.Driver, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(drivers) {
			return nil, fmt.Errorf("no more sessions")
		}
		d := drivers[next]
		next++
		return d, nil
	}

	r := New(
		params,
		factory,
		registry,
		machine,
		identity.New(),
		filter.New(filter.Config{FailOpen: true}),
		store,
		dispatcher,
		staticSenders{pool: []lead.Credential{{Identity: "bot@example.com", Secret: "pw"}}},
		testClock{},
		zap.NewNop(),
	)
	return r, notifier
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	require.Eventually(t, func() bool { return !r.Running() }, 5*time.Second, 10*time.Millisecond)
}

func rawPost(id, text string) lead.RawItem {
	return lead.RawItem{
		Text: text,
		Anchors: []lead.AnchorHint{
			{Href: "https://example.com/feed/update/urn:li:activity:" + id},
		},
	}
}

func TestRunDeliversFreshLeads(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{items: []lead.RawItem{
		rawPost("100", "Hiring a Backend Engineer, remote US, reach me at jobs@acme.com 2h"),
		rawPost("101", "We are hiring a Data Analyst, apply now 3h"),
	}}
	store := dedupmem.New(t.TempDir())
	r, notifier := newTestRunner(t, []*fakeDriver{drv}, store, Config{
		Sources: []lead.Source{{Label: "search-1", URL: "https://example.com/search"}},
	})

	require.NoError(t, r.Start(Params{}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Equal(t, StateIdle, st.State)
	require.Equal(t, 2, st.Found)
	require.Equal(t, 2, st.Sent)
	require.Empty(t, st.LastError)
	require.Len(t, notifier.Sent(), 2)
	require.Equal(t, "jobs@acme.com", notifier.Sent()[0].ReplyTo)

	seen, err := store.Contains(context.Background(), lead.Fingerprint("native:100"))
	require.NoError(t, err)
	require.True(t, seen)

	drv.mu.Lock()
	defer drv.mu.Unlock()
	require.True(t, drv.closed)
}

func TestStartWhileRunningRejected(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{navHang: true}
	r, _ := newTestRunner(t, []*fakeDriver{drv}, dedupmem.New(t.TempDir()), Config{
		Sources: []lead.Source{{Label: "s", URL: "https://example.com"}},
	})

	require.NoError(t, r.Start(Params{}))
	require.Eventually(t, r.Running, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, r.Start(Params{}), ErrAlreadyRunning)

	require.True(t, r.Stop())
	waitDone(t, r)
	require.Equal(t, "stopped by user", r.Snapshot().Message)
}

func TestRunHoldModeSkipsDelivery(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{items: []lead.RawItem{
		rawPost("200", "Hiring a DevOps Engineer, just now, contact ops@example.com"),
	}}
	r, notifier := newTestRunner(t, []*fakeDriver{drv}, dedupmem.New(t.TempDir()), Config{
		Sources: []lead.Source{{Label: "s", URL: "https://example.com"}},
	})

	require.NoError(t, r.Start(Params{HoldMode: true}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Equal(t, 1, st.Found)
	require.Zero(t, st.Sent)
	require.True(t, st.HoldMode)
	require.Contains(t, st.Message, "hold mode")
	require.Empty(t, notifier.Sent())
}

func TestRunSkipsAlreadyDelivered(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{items: []lead.RawItem{
		rawPost("300", "Hiring a QA Engineer, apply today 4h"),
	}}
	store := dedupmem.New(t.TempDir())
	_, err := store.TryAdmit(context.Background(), lead.DeliveryRecord{
		Fingerprint: "native:300",
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)

	r, notifier := newTestRunner(t, []*fakeDriver{drv}, store, Config{
		Sources: []lead.Source{{Label: "s", URL: "https://example.com"}},
	})

	require.NoError(t, r.Start(Params{}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Zero(t, st.Found)
	require.Zero(t, st.Sent)
	require.Equal(t, "no new leads", st.Message)
	require.Empty(t, notifier.Sent())
	require.Len(t, st.Sources, 1)
	require.Equal(t, 1, st.Sources[0].Skipped)
}

func TestRunStoreOutageFailsClosed(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{items: []lead.RawItem{
		rawPost("400", "Hiring a designer, remote 1h"),
	}}
	r, notifier := newTestRunner(t, []*fakeDriver{drv}, brokenStore{dedupmem.New(t.TempDir())}, Config{
		Sources: []lead.Source{{Label: "s", URL: "https://example.com"}},
	})

	require.NoError(t, r.Start(Params{}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Zero(t, st.Sent)
	require.Contains(t, st.LastError, dedup.ErrStoreUnavailable.Error())
	require.Contains(t, st.Message, "unavailable")
	require.Empty(t, notifier.Sent())
}

func TestRunKeywordRestriction(t *testing.T) {
	t.Parallel()

	drv := &fakeDriver{items: []lead.RawItem{
		rawPost("500", "Hiring a Backend Engineer in our platform team 2h"),
		rawPost("501", "Hiring a pastry chef for weekends 2h"),
	}}
	r, notifier := newTestRunner(t, []*fakeDriver{drv}, dedupmem.New(t.TempDir()), Config{
		Sources: []lead.Source{{Label: "s", URL: "https://example.com"}},
	})

	require.NoError(t, r.Start(Params{Keywords: []string{"backend"}}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Equal(t, 1, st.Found)
	require.Equal(t, 1, st.Sent)
	require.Len(t, notifier.Sent(), 1)
}

func TestNavigateRecreatesSessionOnFailure(t *testing.T) {
	t.Parallel()

	broken := &fakeDriver{navErr: fmt.Errorf("net::ERR_CONNECTION_RESET")}
	healthy := &fakeDriver{items: []lead.RawItem{
		rawPost("600", "Hiring an SRE, on-call friendly 6h"),
	}}
	r, notifier := newTestRunner(t, []*fakeDriver{broken, healthy}, dedupmem.New(t.TempDir()), Config{
		Sources:            []lead.Source{{Label: "s", URL: "https://example.com"}},
		MaxSessionRestarts: 2,
	})

	require.NoError(t, r.Start(Params{}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Equal(t, 1, st.Sent)
	require.Len(t, notifier.Sent(), 1)

	broken.mu.Lock()
	defer broken.mu.Unlock()
	require.True(t, broken.closed)
}

func TestNavigateGivesUpAfterBoundedRestarts(t *testing.T) {
	t.Parallel()

	broken := &fakeDriver{navErr: fmt.Errorf("net::ERR_CONNECTION_RESET")}
	alsoBroken := &fakeDriver{navErr: fmt.Errorf("net::ERR_CONNECTION_RESET")}
	r, notifier := newTestRunner(t, []*fakeDriver{broken, alsoBroken}, dedupmem.New(t.TempDir()), Config{
		Sources:            []lead.Source{{Label: "s", URL: "https://example.com"}},
		MaxSessionRestarts: 1,
	})

	require.NoError(t, r.Start(Params{}))
	waitDone(t, r)

	st := r.Snapshot()
	require.Zero(t, st.Sent)
	require.Contains(t, st.LastError, "unreachable")
	require.Len(t, st.Sources, 1)
	require.NotEmpty(t, st.Sources[0].Error)
	require.Empty(t, notifier.Sent())
}
