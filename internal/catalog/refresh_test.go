package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mCat-0/mCat-ac/internal/fetch"
)

func fastFetcher() *fetch.Client {
	return fetch.New(fetch.WithRetry(fetch.RetryConfig{
		MaxAttempts: 2,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		Multiplier:  2,
	}))
}

// upstream serves a GitHub-style contents listing and a file mirror.
type upstream struct {
	files     map[string]string
	listFails bool
	listSrv   *httptest.Server
	deadSrv   *httptest.Server
	goodSrv   *httptest.Server
	deadHits  atomic.Int32
	goodHits  atomic.Int32
}

func newUpstream(t *testing.T, files map[string]string) *upstream {
	t.Helper()
	u := &upstream{files: files}

	u.listSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.listFails {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var entries []map[string]string
		for name := range u.files {
			entries = append(entries, map[string]string{"name": name, "type": "file"})
		}
		entries = append(entries, map[string]string{"name": "README.md", "type": "file"})
		_ = json.NewEncoder(w).Encode(entries)
	}))
	u.deadSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.deadHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	u.goodSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.goodHits.Add(1)
		body, ok := u.files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(func() {
		u.listSrv.Close()
		u.deadSrv.Close()
		u.goodSrv.Close()
	})
	return u
}

func (u *upstream) refresher(s *Store) *Refresher {
	log, _ := test.NewNullLogger()
	return NewRefresher(s, RefreshOptions{
		Fetcher:     fastFetcher(),
		ListURL:     u.listSrv.URL,
		Mirrors:     []string{u.deadSrv.URL, u.goodSrv.URL},
		Concurrency: 2,
		Logger:      log,
	})
}

func TestRefresh_DownloadsAndWritesManifest(t *testing.T) {
	f := newFixture(t)
	u := newUpstream(t, map[string]string{
		"wonders.json": wondersJSON,
		"guild.json":   guildJSON,
		"extra.json":   `{"name":"x","achievements":[{"id":99,"name":"x"}]}`,
	})
	s := f.store()

	report, err := u.refresher(s).Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.False(t, report.UsedFallback)
	assert.Len(t, report.Remote, 3, "non-json entries are ignored")
	assert.ElementsMatch(t, []string{"wonders.json", "guild.json", "extra.json"}, report.Downloaded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, report.Mirror)
	assert.Equal(t, 3, report.Categories)
	assert.Equal(t, 6, report.TotalAchievements)

	raw, err := os.ReadFile(filepath.Join(f.dir, DownloadConfigFile))
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastSuccessSourceIndex":1}`, string(raw))

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestRefresh_SkipsValidLocalFiles(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "wonders.json", wondersJSON)
	u := newUpstream(t, map[string]string{"wonders.json": wondersJSON, "guild.json": guildJSON})

	report, err := u.refresher(f.store()).Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"wonders.json"}, report.Skipped)
	assert.Equal(t, []string{"guild.json"}, report.Downloaded)
}

func TestRefresh_IgnoresListedPaths(t *testing.T) {
	f := newFixture(t)
	u := newUpstream(t, map[string]string{
		"wonders.json":   wondersJSON,
		"../escape.json": guildJSON,
		"nested/x.json":  guildJSON,
		`..\win.json`:   guildJSON,
	})

	report, err := u.refresher(f.store()).Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"wonders.json"}, report.Remote)
	assert.Equal(t, []string{"wonders.json"}, report.Downloaded)

	_, err = os.Stat(filepath.Join(f.dir, "escape.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlainFileName(t *testing.T) {
	assert.True(t, plainFileName("wonders.json"))
	assert.False(t, plainFileName("../wonders.json"))
	assert.False(t, plainFileName("a/b.json"))
	assert.False(t, plainFileName(`a\b.json`))
	assert.False(t, plainFileName(".."))
}

func TestRefresh_ForceDeletesLocalFiles(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "wonders.json", wondersJSON)
	f.writeFile(t, "stale.json", guildJSON)
	u := newUpstream(t, map[string]string{"wonders.json": wondersJSON})

	report, err := u.refresher(f.store()).Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, []string{"wonders.json"}, report.Downloaded)
	assert.Empty(t, report.Extra)

	_, err = os.Stat(filepath.Join(f.fileDir, "stale.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRefresh_ReportsExtraAndFailed(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "local_only.json", guildJSON)
	u := newUpstream(t, map[string]string{"wonders.json": wondersJSON})
	// Listed upstream but never served by any mirror.
	u.files["broken.json"] = `{"achievements":"nope"}`

	report, err := u.refresher(f.store()).Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"local_only.json"}, report.Extra)
	assert.Equal(t, []string{"broken.json"}, report.Missing)
	assert.Equal(t, []string{"broken.json"}, report.Failed)
	assert.False(t, report.OK())
	assert.Equal(t, 2, report.Categories, "manifest includes valid extra files")
}

func TestRefresh_FallbackListAndPreferredMirror(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{}
	for _, name := range FallbackFiles {
		files[name] = `{"achievements":[{"id":` + itoa(len(files)+1) + `,"name":"a"}]}`
	}
	u := newUpstream(t, files)
	u.listFails = true
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, DownloadConfigFile), []byte(`{"lastSuccessSourceIndex":1}`), 0o644))

	report, err := u.refresher(f.store()).Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.UsedFallback)
	assert.Len(t, report.Downloaded, len(FallbackFiles))
	assert.Equal(t, int32(0), u.deadHits.Load(), "starts at the last mirror that worked")
}

func TestRefresh_NothingAvailable(t *testing.T) {
	f := newFixture(t)
	u := newUpstream(t, map[string]string{})
	u.listFails = true

	_, err := u.refresher(f.store()).Refresh(context.Background(), false)
	require.ErrorIs(t, err, ErrNothingDownloaded)
}

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", wondersJSON, false},
		{"null prestage", guildJSON, false},
		{"not json", `{`, true},
		{"missing achievements", `{"name":"x"}`, true},
		{"achievements object", `{"achievements":{}}`, true},
		{"string id", `{"achievements":[{"id":"1"}]}`, true},
		{"zero id", `{"achievements":[{"id":0}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCategory([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
