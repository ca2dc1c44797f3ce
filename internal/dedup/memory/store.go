// Package memory provides an in-memory dedup store for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadscout/leadscout/internal/lead"
)

// Store implements dedup.Store with a mutex-guarded map. Contents do not
// survive a restart.
type Store struct {
	mu        sync.Mutex
	records   map[lead.Fingerprint]lead.DeliveryRecord
	backupDir string
}

// New returns an empty Store. Backups are written under dir; an empty dir
// uses the OS temp directory.
func New(dir string) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{
		records:   make(map[lead.Fingerprint]lead.DeliveryRecord),
		backupDir: dir,
	}
}

// Contains reports whether the fingerprint was already admitted.
func (s *Store) Contains(_ context.Context, fp lead.Fingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[fp]
	return ok, nil
}

// TryAdmit records the fingerprint if absent.
func (s *Store) TryAdmit(_ context.Context, rec lead.DeliveryRecord) (bool, error) {
	if rec.Fingerprint == "" {
		return false, fmt.Errorf("fingerprint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Fingerprint]; ok {
		return false, nil
	}
	s.records[rec.Fingerprint] = rec
	return true, nil
}

// ListAll returns every admitted record, newest first.
func (s *Store) ListAll(_ context.Context) ([]lead.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lead.DeliveryRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// RemoveMany deletes the given fingerprints.
func (s *Store) RemoveMany(_ context.Context, fps []lead.Fingerprint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, fp := range fps {
		if _, ok := s.records[fp]; ok {
			delete(s.records, fp)
			n++
		}
	}
	return n, nil
}

// RemoveOlderThan deletes records created before the cutoff.
func (s *Store) RemoveOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for fp, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, fp)
			n++
		}
	}
	return n, nil
}

// RemoveByContact deletes records whose payload mentions the contact.
func (s *Store) RemoveByContact(_ context.Context, contact string) (int64, error) {
	if contact == "" {
		return 0, nil
	}
	low := strings.ToLower(contact)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for fp, rec := range s.records {
		if strings.Contains(strings.ToLower(string(rec.Payload)), low) {
			delete(s.records, fp)
			n++
		}
	}
	return n, nil
}

// Backup writes a JSON snapshot file and returns its path.
func (s *Store) Backup(_ context.Context) (string, error) {
	s.mu.Lock()
	records := make([]lead.DeliveryRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	s.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}
	path := filepath.Join(s.backupDir, fmt.Sprintf("sent_leads_backup_%s.json", time.Now().UTC().Format("20060102t150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

// Close is a no-op.
func (s *Store) Close() {}
