// Package dedup defines the durable store that guarantees at most one
// delivery per fingerprint across process restarts.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/leadscout/leadscout/internal/lead"
)

// ErrStoreUnavailable wraps any storage failure. Callers must treat it as
// "do not send": an unreachable store means delivery state is unknown.
var ErrStoreUnavailable = errors.New("dedup store unavailable")

// Store is the dedup contract. TryAdmit is the only admission path and must
// be atomic: of any number of concurrent calls for one fingerprint, exactly
// one observes admitted=true.
type Store interface {
	// Contains reports whether the fingerprint was already admitted.
	Contains(ctx context.Context, fp lead.Fingerprint) (bool, error)

	// TryAdmit records the fingerprint if absent. It returns true when this
	// call inserted the record, false when the fingerprint already existed.
	TryAdmit(ctx context.Context, rec lead.DeliveryRecord) (bool, error)

	// ListAll returns every admitted record.
	ListAll(ctx context.Context) ([]lead.DeliveryRecord, error)

	// RemoveMany deletes the given fingerprints and reports how many rows
	// were removed.
	RemoveMany(ctx context.Context, fps []lead.Fingerprint) (int64, error)

	// RemoveOlderThan deletes records created before the cutoff.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// RemoveByContact deletes records whose payload references the contact.
	RemoveByContact(ctx context.Context, contact string) (int64, error)

	// Backup writes a durable copy of the current records and returns its
	// location. Admin purges call this first.
	Backup(ctx context.Context) (string, error)

	// Close releases underlying resources.
	Close()
}
