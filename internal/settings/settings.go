// Package settings defines the operator settings store and the views built
// on top of it, such as the sender credential pool.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leadscout/leadscout/internal/lead"
)

// Store persists JSON-valued settings by key.
type Store interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	Delete(ctx context.Context, key string) error
	Close()
}

// KeySenders is the settings key holding the sender credential pool.
const KeySenders = "senders"

// SenderPool manages the rotating sender credentials on top of a Store.
type SenderPool struct {
	store Store
}

// NewSenderPool builds a pool view over the given store.
func NewSenderPool(store Store) *SenderPool {
	return &SenderPool{store: store}
}

// Senders returns the configured credentials in pool order.
func (p *SenderPool) Senders(ctx context.Context) ([]lead.Credential, error) {
	var pool []lead.Credential
	if _, err := p.store.Get(ctx, KeySenders, &pool); err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}
	return pool, nil
}

// Add appends a credential, replacing any existing entry with the same
// identity.
func (p *SenderPool) Add(ctx context.Context, cred lead.Credential) error {
	if strings.TrimSpace(cred.Identity) == "" || cred.Secret == "" {
		return fmt.Errorf("sender identity and secret are required")
	}
	pool, err := p.Senders(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range pool {
		if strings.EqualFold(existing.Identity, cred.Identity) {
			pool[i] = cred
			replaced = true
			break
		}
	}
	if !replaced {
		pool = append(pool, cred)
	}
	if err := p.store.Set(ctx, KeySenders, pool); err != nil {
		return fmt.Errorf("save senders: %w", err)
	}
	return nil
}

// Remove deletes the credential with the given identity. It reports whether
// anything was removed.
func (p *SenderPool) Remove(ctx context.Context, identity string) (bool, error) {
	pool, err := p.Senders(ctx)
	if err != nil {
		return false, err
	}
	kept := pool[:0]
	removed := false
	for _, cred := range pool {
		if strings.EqualFold(cred.Identity, identity) {
			removed = true
			continue
		}
		kept = append(kept, cred)
	}
	if !removed {
		return false, nil
	}
	if err := p.store.Set(ctx, KeySenders, kept); err != nil {
		return false, fmt.Errorf("save senders: %w", err)
	}
	return true, nil
}
