package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/lead"
)

func TestTryAdmitIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	rec := lead.DeliveryRecord{Fingerprint: "native:1", CreatedAt: time.Now()}

	admitted, err := s.TryAdmit(context.Background(), rec)
	require.NoError(t, err)
	require.True(t, admitted)

	admitted, err = s.TryAdmit(context.Background(), rec)
	require.NoError(t, err)
	require.False(t, admitted)

	ok, err := s.Contains(context.Background(), "native:1")
	require.NoError(t, err)
	require.True(t, ok)
}

// TestTryAdmitConcurrent drives N goroutines at one fingerprint and checks
// exactly one admission wins.
func TestTryAdmitConcurrent(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	const workers = 32

	var wg sync.WaitGroup
	admissions := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := s.TryAdmit(context.Background(), lead.DeliveryRecord{
				Fingerprint: "text:contended",
				CreatedAt:   time.Now(),
			})
			require.NoError(t, err)
			admissions <- admitted
		}()
	}
	wg.Wait()
	close(admissions)

	var wins int
	for admitted := range admissions {
		if admitted {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}

func TestRemoveOlderThan(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	now := time.Now()
	for _, rec := range []lead.DeliveryRecord{
		{Fingerprint: "native:old", CreatedAt: now.Add(-48 * time.Hour)},
		{Fingerprint: "native:new", CreatedAt: now},
	} {
		_, err := s.TryAdmit(context.Background(), rec)
		require.NoError(t, err)
	}

	n, err := s.RemoveOlderThan(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	ok, err := s.Contains(context.Background(), "native:new")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveByContact(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	payload, err := lead.EncodePayload(lead.DeliveryPayload{Emails: []string{"jane@acme.io"}})
	require.NoError(t, err)

	_, err = s.TryAdmit(context.Background(), lead.DeliveryRecord{Fingerprint: "native:1", Payload: payload, CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.TryAdmit(context.Background(), lead.DeliveryRecord{Fingerprint: "native:2", CreatedAt: time.Now()})
	require.NoError(t, err)

	n, err := s.RemoveByContact(context.Background(), "Jane@acme.io")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestBackupWritesSnapshot(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	_, err := s.TryAdmit(context.Background(), lead.DeliveryRecord{Fingerprint: "native:1", CreatedAt: time.Now()})
	require.NoError(t, err)

	path, err := s.Backup(context.Background())
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestListAllOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	now := time.Now()
	for i, fp := range []lead.Fingerprint{"native:1", "native:2", "native:3"} {
		_, err := s.TryAdmit(context.Background(), lead.DeliveryRecord{
			Fingerprint: fp,
			CreatedAt:   now.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	records, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, lead.Fingerprint("native:3"), records[0].Fingerprint)
}
