package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err, "open test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openTestStore(t)
	assert.NotNil(t, s.DB())
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so journal_mode is checked in TestOpen_FileDB.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		require.NoError(t, err, "PRAGMA %s", tt.pragma)
		assert.Equal(t, tt.want, got, "PRAGMA %s", tt.pragma)
	}
}

func TestOpen_FileDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSequenceMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var prev int64
	for range 5 {
		n, err := s.seq.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestImportEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	for i, user := range []string{"a", "b", "a"} {
		require.NoError(t, repo.AppendImport(ctx, ImportEventData{
			BatchID:  fmt.Sprintf("batch-%d", i),
			UserID:   user,
			Source:   "sharecode",
			Strategy: "known-arrays",
			Found:    10 + i,
			Added:    i,
		}))
	}

	all, err := repo.QueryImports(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "batch-2", all[0].BatchID, "newest first")
	assert.Equal(t, 12, all[0].Found)
	assert.WithinDuration(t, time.Now(), all[0].Timestamp, time.Minute)

	mine, err := repo.QueryImports(ctx, QueryOpts{UserID: "a", Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "batch-2", mine[0].BatchID)

	after, err := repo.QueryImports(ctx, QueryOpts{After: all[1].Sequence})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "batch-2", after[0].BatchID)
}

func TestRefreshEvents(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	latest, err := repo.LatestRefresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, repo.AppendRefresh(ctx, RefreshEventData{Remote: 12, Downloaded: 12, TotalAchievements: 900}))
	require.NoError(t, repo.AppendRefresh(ctx, RefreshEventData{
		Forced:       true,
		UsedFallback: true,
		Remote:       12,
		Failed:       2,
		Missing:      2,
		Duration:     1500 * time.Millisecond,
		ErrorMessage: "partial",
	}))

	latest, err = repo.LatestRefresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Forced)
	assert.True(t, latest.UsedFallback)
	assert.Equal(t, 2, latest.Failed)
	assert.Equal(t, 1500*time.Millisecond, latest.Duration)
	assert.Equal(t, "partial", latest.ErrorMessage)
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("MCATAC_DB", filepath.Join(dir, "x", "custom.db"))
	p, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x", "custom.db"), p)
	assert.DirExists(t, filepath.Join(dir, "x"))

	t.Setenv("MCATAC_DB", "")
	t.Setenv("XDG_DATA_HOME", dir)
	p, err = DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mcat-ac", "events.db"), p)
}
