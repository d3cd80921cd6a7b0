package devserver

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/sessionstore/sqlite"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingSweepsExpiredRefreshTokens(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "sessiond.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Unix(1700000000, 0)
	st.Now = func() time.Time { return now }

	short := NewRefreshTokens(st, time.Minute)
	long := NewRefreshTokens(st, time.Hour)

	_, err = short.Issue(t.Context(), "a@example.com")
	require.NoError(t, err)
	_, err = short.Issue(t.Context(), "b@example.com")
	require.NoError(t, err)
	kept, err := long.Issue(t.Context(), "c@example.com")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	n, err := st.DeleteExpired(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	email, _, err := long.Rotate(t.Context(), kept)
	require.NoError(t, err)
	require.Equal(t, "c@example.com", email)
}

func TestHousekeepingStartStop(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "sessiond.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Unix(1700000000, 0)
	st.Now = func() time.Time { return now }
	require.NoError(t, st.Set(t.Context(), "refresh:stale", "a@example.com", time.Second))
	now = now.Add(time.Minute)

	hk := NewHousekeeping(st, slogx.Discard(), time.Hour)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Start()
	hk.Stop()

	// The first sweep runs on Start, so nothing is left to delete.
	n, err := st.DeleteExpired(t.Context())
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, time.Hour, NewHousekeeping(st, slogx.Discard(), 0).Interval)
}
