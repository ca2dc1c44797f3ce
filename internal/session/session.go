// Package session defines the interactive browser session contract and a
// registry that lets other components hold sessions by ID instead of by
// reference, so a closed session is observed as gone rather than used stale.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/leadscout/leadscout/internal/lead"
)

// ErrSessionGone is returned when a registry lookup finds no live session
// for the handle.
var ErrSessionGone = errors.New("session gone")

// Key is one of the allowed special keys for remote interaction.
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyTab    Key = "Tab"
	KeyEscape Key = "Escape"
)

// ValidKey reports whether k is one of the allowed interaction keys.
func ValidKey(k Key) bool {
	switch k {
	case KeyEnter, KeyTab, KeyEscape:
		return true
	}
	return false
}

// Artifacts is a capture of the current page for the operator: a screenshot
// and the raw HTML.
type Artifacts struct {
	Screenshot []byte
	HTML       []byte
	URL        string
	Title      string
}

// Driver is a live browser session against the upstream source.
type Driver interface {
	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error

	// ExtractItems captures the visible short-text items on the current
	// page together with nearby anchor hrefs.
	ExtractItems(ctx context.Context) ([]lead.RawItem, error)

	// IsChallengePage probes whether the current page is a
	// human-verification challenge.
	IsChallengePage(ctx context.Context) (bool, error)

	// CaptureArtifacts grabs a screenshot and the page HTML.
	CaptureArtifacts(ctx context.Context) (Artifacts, error)

	// InjectInput types text into the focused or most plausible input.
	InjectInput(ctx context.Context, text string) error

	// DispatchClick clicks at normalized page coordinates in [0,1].
	DispatchClick(ctx context.Context, x, y float64) error

	// SendKey dispatches one of the allowed special keys.
	SendKey(ctx context.Context, key Key) error

	// Close tears the session down.
	Close(ctx context.Context) error
}

// Registry maps handles to live drivers. Holding a handle never keeps a
// closed session alive.
type Registry struct {
	mu      sync.Mutex
	nextID  int
	drivers map[string]Driver
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register stores the driver and returns its handle.
func (r *Registry) Register(d Driver) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := "sess-" + strconv.Itoa(r.nextID)
	r.drivers[id] = d
	return id
}

// Lookup resolves a handle. It returns ErrSessionGone for unknown or
// removed handles.
func (r *Registry) Lookup(id string) (Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, ErrSessionGone
	}
	return d, nil
}

// Remove drops the handle. Removing an unknown handle is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drivers, id)
}
