package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     string
	fileDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dir: dir, fileDir: filepath.Join(dir, "File")}
	require.NoError(t, os.MkdirAll(f.fileDir, 0o755))
	return f
}

func (f fixture) writeManifest(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, ManifestFile), []byte(raw), 0o644))
}

func (f fixture) writeFile(t *testing.T, name, raw string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.fileDir, name), []byte(raw), 0o644))
}

// writeCatalog writes a manifest listing files in order plus each file.
func (f fixture) writeCatalog(t *testing.T, files [][2]string) {
	t.Helper()
	m := Manifest{}
	for _, kv := range files {
		m.Categories = append(m.Categories, CategoryInfo{Name: categoryName(kv[0]), FileName: kv[0]})
		f.writeFile(t, kv[0], kv[1])
	}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	f.writeManifest(t, string(raw))
}

func (f fixture) store(opts ...func(*Options)) *Store {
	log, _ := test.NewNullLogger()
	o := Options{Dir: f.dir, FileDir: f.fileDir, CacheTTL: time.Hour, Logger: log}
	for _, fn := range opts {
		fn(&o)
	}
	return NewStore(o)
}

const wondersJSON = `{"name":"天地万象","achievements":[
	{"id":1,"name":"天下宝藏","desc":"open chests","reward":5},
	{"id":2,"name":"天下宝藏","reward":10,"preStage":1},
	{"id":3,"name":"天下宝藏","reward":20,"preStage":2}
]}`

const guildJSON = `{"achievements":[
	{"id":10,"name":"冒险家","description":"join","reward":5,"hidden":true},
	{"id":84517,"name":"sentinel","reward":0,"preStage":null}
]}`

func TestIsStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		entry *CacheEntry[int]
		want  bool
	}{
		{"nil entry", nil, true},
		{"fresh", &CacheEntry[int]{LoadedAt: now.Add(-time.Minute)}, false},
		{"exactly ttl", &CacheEntry[int]{LoadedAt: now.Add(-time.Hour)}, true},
		{"expired", &CacheEntry[int]{LoadedAt: now.Add(-2 * time.Hour)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStale(tt.entry, now, time.Hour))
		})
	}
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}, {"guild.json", guildJSON}})

	snap, err := f.store().Load()
	require.NoError(t, err)
	require.Len(t, snap.Achievements, 5)
	assert.Equal(t, []string{"wonders.json", "guild.json"}, snap.Report.Loaded)

	first := snap.Achievements[0]
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, "open chests", first.Description)
	assert.Equal(t, "天地万象", first.Category)
	assert.False(t, first.HasPreStage())

	a, ok := snap.Get(10)
	require.True(t, ok)
	assert.Equal(t, "join", a.Description)
	assert.True(t, a.Hidden)
	assert.Equal(t, "guild", a.Category, "falls back to the manifest name")

	a, ok = snap.Get(84517)
	require.True(t, ok)
	assert.Equal(t, 0, a.PreStage)
}

func TestLoad_ManifestMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.store().Load()
	require.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestLoad_ManifestCorrupt(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, `{"categories":`)
	_, err := f.store().Load()
	require.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestLoad_FormatErrors(t *testing.T) {
	t.Run("categories not an array", func(t *testing.T) {
		f := newFixture(t)
		f.writeManifest(t, `{"categories":{"a":1}}`)
		_, err := f.store().Load()
		require.ErrorIs(t, err, ErrCatalogFormat)
	})
	t.Run("achievements not an array", func(t *testing.T) {
		f := newFixture(t)
		f.writeCatalog(t, [][2]string{{"bad.json", `{"achievements":{"id":1}}`}})
		_, err := f.store().Load()
		require.ErrorIs(t, err, ErrCatalogFormat)
	})
}

func TestLoad_SkipsMissingAndCorruptFiles(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}, {"corrupt.json", `{"achievements":[`}})
	f.writeManifest(t, `{"categories":[
		{"name":"w","fileName":"wonders.json"},
		{"name":"c","fileName":"corrupt.json"},
		{"name":"g","fileName":"gone.json"}
	]}`)

	snap, err := f.store().Load()
	require.NoError(t, err)
	assert.Len(t, snap.Achievements, 3)
	assert.Equal(t, []string{"gone.json"}, snap.Report.Missing)
	assert.Equal(t, []string{"corrupt.json"}, snap.Report.Invalid)
}

func TestLoad_DuplicateIDsKeepFirst(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{
		{"a.json", `{"achievements":[{"id":7,"name":"first","reward":1}]}`},
		{"b.json", `{"achievements":[{"id":7,"name":"second","reward":2},{"id":8,"name":"other"}]}`},
	})

	log, hook := test.NewNullLogger()
	s := NewStore(Options{Dir: f.dir, FileDir: f.fileDir, Logger: log})

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Name)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "duplicate achievement id, keeping first" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestLoad_SkipsUndecodableEntry(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{
		{"mixed.json", `{"achievements":[{"id":1,"name":"ok","reward":5},{"id":2,"name":"bad","reward":"10"},{"id":3,"name":"also ok"}]}`},
	})

	log, hook := test.NewNullLogger()
	snap, err := NewStore(Options{Dir: f.dir, FileDir: f.fileDir, Logger: log}).Load()
	require.NoError(t, err)
	require.Len(t, snap.Achievements, 2)
	assert.Equal(t, 1, snap.Achievements[0].ID)
	assert.Equal(t, 3, snap.Achievements[1].ID)
	assert.Equal(t, []string{"mixed.json"}, snap.Report.Loaded)
	assert.Empty(t, snap.Report.Invalid)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "skipping undecodable achievement entry" {
			warned = true
			assert.Equal(t, int64(1), e.Data["index"])
		}
	}
	assert.True(t, warned)
}

func TestSnapshot_CachedUntilStale(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := f.store(func(o *Options) { o.Now = func() time.Time { return now } })

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)

	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}, {"guild.json", guildJSON}})

	now = now.Add(30 * time.Minute)
	all, err = s.All()
	require.NoError(t, err)
	assert.Len(t, all, 3, "served from cache")

	now = now.Add(31 * time.Minute)
	all, err = s.All()
	require.NoError(t, err)
	assert.Len(t, all, 5, "reloaded after ttl")

	f.writeCatalog(t, [][2]string{{"guild.json", guildJSON}})
	s.Invalidate()
	assert.True(t, s.CachedAt().IsZero())
	all, err = s.All()
	require.NoError(t, err)
	assert.Len(t, all, 2, "reloaded after invalidate")
}

func TestGetByID(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}})
	s := f.store()

	a, ok := s.GetByID(2)
	require.True(t, ok)
	assert.Equal(t, 1, a.PreStage)

	_, ok = s.GetByID(999)
	assert.False(t, ok)
}

func TestGetByID_NoCatalog(t *testing.T) {
	f := newFixture(t)
	_, ok := f.store().GetByID(1)
	assert.False(t, ok)
}

func TestFindByName(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"wonders.json", wondersJSON}, {"guild.json", guildJSON}})
	s := f.store()

	tests := []struct {
		name    string
		query   string
		wantIDs []int
	}{
		{"exact", "冒险家", []int{10}},
		{"query contains name", "我是冒险家啊", []int{10}},
		{"name contains query", "宝藏", []int{1, 2, 3}},
		{"no match", "深渊", nil},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ids []int
			for _, a := range s.FindByName(tt.query) {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	f.writeCatalog(t, [][2]string{{"a.json", `{"achievements":[
		{"id":1,"name":"Treasure Hunter"},
		{"id":2,"name":"Dragon Slayer"}
	]}`}})
	s := f.store()

	got := s.Suggest("Treasure Hunterz", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "Treasure Hunter", got[0])
	assert.Nil(t, s.Suggest("x", 0))
}
