package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore"
	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/sqlite"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()

	st, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, filepath.Join(t.TempDir(), "session.db"))

	_, err := st.Get(ctx, sessionstore.TokenKey)
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	require.NoError(t, st.Set(ctx, sessionstore.TokenKey, "t1", time.Hour))
	require.NoError(t, st.Set(ctx, sessionstore.TokenKey, "t2", time.Hour))

	v, err := st.Get(ctx, sessionstore.TokenKey)
	require.NoError(t, err)
	require.Equal(t, "t2", v)

	require.NoError(t, st.Delete(ctx, sessionstore.TokenKey, "never-set"))
	_, err = st.Get(ctx, sessionstore.TokenKey)
	require.ErrorIs(t, err, sessionstore.ErrNotFound)
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, filepath.Join(t.TempDir(), "session.db"))

	now := time.Unix(1700000000, 0)
	st.Now = func() time.Time { return now }

	require.NoError(t, st.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, st.Set(ctx, "long", "v", time.Hour))

	now = now.Add(2 * time.Minute)
	_, err := st.Get(ctx, "k")
	require.ErrorIs(t, err, sessionstore.ErrNotFound)

	n, err := st.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n) // Get already reclaimed the only stale row

	v, err := st.Get(ctx, "long")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestSharedFileActsLikeSharedCookieJar(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	tabA := openStore(t, path)
	tabB := openStore(t, path)

	require.NoError(t, sessionstore.SaveTokens(ctx, tabA, sessionstore.Tokens{Access: "a", Refresh: "r"}))

	got, err := sessionstore.LoadTokens(ctx, tabB)
	require.NoError(t, err)
	require.Equal(t, "a", got.Access)

	require.NoError(t, sessionstore.ClearTokens(ctx, tabB))
	got, err = sessionstore.LoadTokens(ctx, tabA)
	require.NoError(t, err)
	require.Empty(t, got.Access)
}
