package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/closestmatch"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ManifestFile is the manifest's name inside the catalog dir.
const ManifestFile = "mCatAc.json"

// LoadReport lists the category files that could not contribute to a load.
type LoadReport struct {
	Loaded  []string
	Missing []string
	Invalid []string
}

// Snapshot is an immutable, fully indexed view of the catalog.
type Snapshot struct {
	Manifest     Manifest
	Achievements []Achievement
	Report       LoadReport

	byID    map[int]int
	matcher *closestmatch.ClosestMatch
}

func newSnapshot(m Manifest, achievements []Achievement, report LoadReport) *Snapshot {
	s := &Snapshot{
		Manifest:     m,
		Achievements: achievements,
		Report:       report,
		byID:         make(map[int]int, len(achievements)),
	}
	seen := make(map[string]bool)
	var names []string
	for i, a := range achievements {
		s.byID[a.ID] = i
		if a.Name != "" && !seen[a.Name] {
			seen[a.Name] = true
			names = append(names, a.Name)
		}
	}
	if len(names) > 0 {
		s.matcher = closestmatch.New(names, []int{2})
	}
	return s
}

// Get returns the achievement with the given ID.
func (s *Snapshot) Get(id int) (Achievement, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Achievement{}, false
	}
	return s.Achievements[i], true
}

// Options configures a Store.
type Options struct {
	// Dir holds the manifest and downloadConfig.json.
	Dir string
	// FileDir holds the category files.
	FileDir  string
	CacheTTL time.Duration
	Logger   logrus.FieldLogger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store loads the achievement catalog from disk and caches it for CacheTTL.
type Store struct {
	dir     string
	fileDir string
	ttl     time.Duration
	log     logrus.FieldLogger
	now     func() time.Time

	mu    sync.Mutex
	entry *CacheEntry[*Snapshot]
}

func NewStore(opts Options) *Store {
	s := &Store{
		dir:     opts.Dir,
		fileDir: opts.FileDir,
		ttl:     opts.CacheTTL,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = time.Hour
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Dir returns the catalog dir.
func (s *Store) Dir() string { return s.dir }

// FileDir returns the category file dir.
func (s *Store) FileDir() string { return s.fileDir }

// ManifestPath returns the manifest location.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.dir, ManifestFile)
}

// Snapshot returns the cached catalog, loading it when absent or stale.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !IsStale(s.entry, s.now(), s.ttl) {
		return s.entry.Value, nil
	}

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.entry = &CacheEntry[*Snapshot]{Value: snap, LoadedAt: s.now()}
	return snap, nil
}

// Load forces a reload from disk and replaces the cache.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.entry = &CacheEntry[*Snapshot]{Value: snap, LoadedAt: s.now()}
	return snap, nil
}

// Invalidate drops the cached snapshot.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
}

// CachedAt returns when the current snapshot was loaded, or the zero time.
func (s *Store) CachedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return time.Time{}
	}
	return s.entry.LoadedAt
}

// All returns every achievement in catalog order.
func (s *Store) All() ([]Achievement, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Achievements, nil
}

// GetByID looks up one achievement. A catalog that cannot be loaded reads
// as "not found".
func (s *Store) GetByID(id int) (Achievement, bool) {
	snap, err := s.Snapshot()
	if err != nil {
		s.log.WithError(err).WithField("id", id).Debug("catalog lookup without catalog")
		return Achievement{}, false
	}
	return snap.Get(id)
}

// FindByName returns every achievement whose name contains name or is
// contained in it, in catalog order.
func (s *Store) FindByName(name string) []Achievement {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	snap, err := s.Snapshot()
	if err != nil {
		s.log.WithError(err).WithField("name", name).Debug("catalog search without catalog")
		return nil
	}

	var matches []Achievement
	for _, a := range snap.Achievements {
		if a.Name == "" {
			continue
		}
		if strings.Contains(a.Name, name) || strings.Contains(name, a.Name) {
			matches = append(matches, a)
		}
	}
	return matches
}

// Suggest returns up to n catalog names close to name.
func (s *Store) Suggest(name string, n int) []string {
	snap, err := s.Snapshot()
	if err != nil || snap.matcher == nil || n <= 0 {
		return nil
	}
	var out []string
	for _, c := range snap.matcher.ClosestN(name, n) {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) load() (*Snapshot, error) {
	raw, err := os.ReadFile(s.ManifestPath())
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", ErrCatalogUnavailable, err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: manifest is not valid JSON", ErrCatalogUnavailable)
	}
	if !gjson.GetBytes(raw, "categories").IsArray() {
		return nil, fmt.Errorf("%w: manifest categories is not an array", ErrCatalogFormat)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrCatalogFormat, err)
	}

	var (
		report       LoadReport
		achievements []Achievement
		seen         = make(map[int]string)
	)
	for _, cat := range m.Categories {
		log := s.log.WithField("file", cat.FileName)

		list, err := s.loadCategory(cat)
		switch {
		case errors.Is(err, ErrCatalogFormat):
			return nil, err
		case errors.Is(err, os.ErrNotExist):
			log.Warn("category file missing, skipping")
			report.Missing = append(report.Missing, cat.FileName)
			continue
		case err != nil:
			log.WithError(err).Warn("category file unreadable, skipping")
			report.Invalid = append(report.Invalid, cat.FileName)
			continue
		}

		for _, a := range list {
			if first, dup := seen[a.ID]; dup {
				log.WithFields(logrus.Fields{"id": a.ID, "first_file": first}).Warn("duplicate achievement id, keeping first")
				continue
			}
			seen[a.ID] = cat.FileName
			achievements = append(achievements, a)
		}
		report.Loaded = append(report.Loaded, cat.FileName)
	}

	s.log.WithFields(logrus.Fields{
		"achievements": len(achievements),
		"files":        len(report.Loaded),
		"missing":      len(report.Missing),
		"invalid":      len(report.Invalid),
	}).Info("catalog loaded")

	return newSnapshot(m, achievements, report), nil
}

func (s *Store) loadCategory(cat CategoryInfo) ([]Achievement, error) {
	raw, err := os.ReadFile(filepath.Join(s.fileDir, cat.FileName))
	if err != nil {
		return nil, err
	}
	return parseCategory(raw, cat.FileName, cat.Name, s.log)
}

// parseCategory decodes a category file. Entries without a positive ID or
// that fail to decode are dropped; a non-array achievements field is a
// format error.
func parseCategory(raw []byte, fileName, fallbackName string, log logrus.FieldLogger) ([]Achievement, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(raw)
	list := doc.Get("achievements")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: %s: achievements is not an array", ErrCatalogFormat, fileName)
	}

	category := doc.Get("name").String()
	if category == "" {
		category = fallbackName
	}
	if category == "" {
		category = categoryName(fileName)
	}

	var out []Achievement
	list.ForEach(func(key, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		var a Achievement
		if err := json.Unmarshal([]byte(v.Raw), &a); err != nil {
			log.WithError(err).WithFields(logrus.Fields{"file": fileName, "index": key.Int()}).Warn("skipping undecodable achievement entry")
			return true
		}
		if a.ID <= 0 {
			return true
		}
		a.Category = category
		out = append(out, a)
		return true
	})
	return out, nil
}
