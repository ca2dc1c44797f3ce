package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestSetUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "settings")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO settings").
		WithArgs("ai_filter_enabled", []byte("true")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), "ai_filter_enabled", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "settings")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	var out bool
	found, err := store.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetDecodesValue(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "settings")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT value FROM settings").
		WithArgs("hold_mode").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte("true")))

	var out bool
	found, err := store.Get(context.Background(), "hold_mode", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, out)
}

func TestGetAll(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "settings")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT key, value FROM settings").
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
			AddRow("ai_filter_enabled", []byte("true")).
			AddRow("recipients", []byte(`["ops@acme.io"]`)))

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.JSONEq(t, `["ops@acme.io"]`, string(all["recipients"]))
}
