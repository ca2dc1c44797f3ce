// Package artifacts persists page captures (screenshots and HTML) so the
// operator can see what the paused session sees.
package artifacts

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"

	"github.com/leadscout/leadscout/internal/session"
)

// Well-known artifact paths. Token-scoped captures live next to the rolling
// "live" pointer the status UI polls.
const (
	LiveScreenshotPath = "live.png"
	LiveHTMLPath       = "live.html.gz"
)

// Store writes raw artifacts and returns a URI.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// ScreenshotPath returns the capture path for a pause token.
func ScreenshotPath(token string) string {
	return fmt.Sprintf("screenshots/%s.png", token)
}

// HTMLPath returns the gzipped HTML capture path for a pause token.
func HTMLPath(token string) string {
	return fmt.Sprintf("html/%s.html.gz", token)
}

// Snapshot is the stored location pair for one capture round.
type Snapshot struct {
	ScreenshotURI string
	HTMLURI       string
}

// Save writes a capture under its token paths and refreshes the live
// pointer. HTML is gzip-compressed before storage.
func Save(ctx context.Context, store Store, token string, art session.Artifacts) (Snapshot, error) {
	var snap Snapshot
	if store == nil {
		return snap, fmt.Errorf("artifact store is not configured")
	}

	if len(art.Screenshot) > 0 {
		uri, err := store.PutObject(ctx, ScreenshotPath(token), "image/png", art.Screenshot)
		if err != nil {
			return snap, fmt.Errorf("store screenshot: %w", err)
		}
		snap.ScreenshotURI = uri
		if _, err := store.PutObject(ctx, LiveScreenshotPath, "image/png", art.Screenshot); err != nil {
			return snap, fmt.Errorf("store live screenshot: %w", err)
		}
	}

	if len(art.HTML) > 0 {
		compressed, err := gzipBytes(art.HTML)
		if err != nil {
			return snap, fmt.Errorf("compress html: %w", err)
		}
		uri, err := store.PutObject(ctx, HTMLPath(token), "application/gzip", compressed)
		if err != nil {
			return snap, fmt.Errorf("store html: %w", err)
		}
		snap.HTMLURI = uri
		if _, err := store.PutObject(ctx, LiveHTMLPath, "application/gzip", compressed); err != nil {
			return snap, fmt.Errorf("store live html: %w", err)
		}
	}
	return snap, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
