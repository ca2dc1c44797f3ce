package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leadscout/leadscout/internal/lead"
	"github.com/leadscout/leadscout/internal/settings"
	"github.com/leadscout/leadscout/internal/settings/memory"
)

func TestSenderPoolEmpty(t *testing.T) {
	t.Parallel()

	pool := settings.NewSenderPool(memory.New())
	senders, err := pool.Senders(context.Background())
	require.NoError(t, err)
	require.Empty(t, senders)
}

func TestSenderPoolAddPreservesOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := settings.NewSenderPool(memory.New())

	require.NoError(t, pool.Add(ctx, lead.Credential{Identity: "a@example.com", Secret: "pw-a"}))
	require.NoError(t, pool.Add(ctx, lead.Credential{Identity: "b@example.com", Secret: "pw-b"}))

	senders, err := pool.Senders(ctx)
	require.NoError(t, err)
	require.Len(t, senders, 2)
	require.Equal(t, "a@example.com", senders[0].Identity)
	require.Equal(t, "b@example.com", senders[1].Identity)
}

func TestSenderPoolAddReplacesSameIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := settings.NewSenderPool(memory.New())

	require.NoError(t, pool.Add(ctx, lead.Credential{Identity: "a@example.com", Secret: "old"}))
	require.NoError(t, pool.Add(ctx, lead.Credential{Identity: "A@Example.com", Secret: "new"}))

	senders, err := pool.Senders(ctx)
	require.NoError(t, err)
	require.Len(t, senders, 1)
	require.Equal(t, "new", senders[0].Secret)
}

func TestSenderPoolAddValidates(t *testing.T) {
	t.Parallel()

	pool := settings.NewSenderPool(memory.New())
	require.Error(t, pool.Add(context.Background(), lead.Credential{Identity: " ", Secret: "pw"}))
	require.Error(t, pool.Add(context.Background(), lead.Credential{Identity: "a@example.com"}))
}

func TestSenderPoolRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := settings.NewSenderPool(memory.New())
	require.NoError(t, pool.Add(ctx, lead.Credential{Identity: "a@example.com", Secret: "pw"}))

	removed, err := pool.Remove(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = pool.Remove(ctx, "a@example.com")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.Set(ctx, "hold_mode", true))
	var hold bool
	found, err := store.Get(ctx, "hold_mode", &hold)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, hold)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "hold_mode")

	require.NoError(t, store.Delete(ctx, "hold_mode"))
	found, err = store.Get(ctx, "hold_mode", &hold)
	require.NoError(t, err)
	require.False(t, found)
}
