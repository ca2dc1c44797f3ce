package artifacts

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/artifacts/memory"
	"github.com/leadscout/leadscout/internal/session"
)

func TestSaveWritesTokenAndLivePaths(t *testing.T) {
	t.Parallel()

	store := memory.New()
	art := session.Artifacts{
		Screenshot: []byte("png-bytes"),
		HTML:       []byte("<html><body>challenge</body></html>"),
	}

	snap, err := Save(context.Background(), store, "tok-123", art)
	require.NoError(t, err)
	require.Equal(t, "memory://screenshots/tok-123.png", snap.ScreenshotURI)
	require.Equal(t, "memory://html/tok-123.html.gz", snap.HTMLURI)

	shot, ok := store.Get("screenshots/tok-123.png")
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), shot)

	live, ok := store.Get(LiveScreenshotPath)
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), live)

	compressed, ok := store.Get("html/tok-123.html.gz")
	require.True(t, ok)
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	html, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, art.HTML, html)
}

func TestSaveSkipsEmptyCaptures(t *testing.T) {
	t.Parallel()

	store := memory.New()
	snap, err := Save(context.Background(), store, "tok-1", session.Artifacts{})
	require.NoError(t, err)
	require.Empty(t, snap.ScreenshotURI)
	require.Empty(t, snap.HTMLURI)

	_, ok := store.Get(LiveScreenshotPath)
	require.False(t, ok)
}
