package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/mCat-0/mCat-ac/internal/fetch"
	"github.com/mCat-0/mCat-ac/internal/fsutil"
)

// DownloadConfigFile remembers which mirror served the last download.
const DownloadConfigFile = "downloadConfig.json"

// FallbackFiles is used when the remote file list cannot be fetched.
var FallbackFiles = []string{
	"adventurers_guild.json",
	"wonders_of_the_world.json",
	"mondstadt_adventure.json",
	"mondstadt_stories.json",
	"liye_adventure.json",
	"liye_stories.json",
	"inazuma_adventure.json",
	"inazuma_stories.json",
	"sumeru_adventure.json",
	"sumeru_stories.json",
	"fontaine_adventure.json",
	"fontaine_stories.json",
}

// Fetcher is the subset of *fetch.Client the refresher needs.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetMirrored(ctx context.Context, mirrors []string, start int, path string) ([]byte, int, error)
}

var _ Fetcher = (*fetch.Client)(nil)

// RefreshOptions configures a Refresher.
type RefreshOptions struct {
	Fetcher     Fetcher
	ListURL     string
	Mirrors     []string
	Concurrency int
	Logger      logrus.FieldLogger
}

// RefreshReport summarizes one refresh run.
type RefreshReport struct {
	Remote       []string
	UsedFallback bool
	Deleted      int
	Downloaded   []string
	Skipped      []string
	Failed       []string
	// Missing, Extra and Invalid describe the local dir after the run.
	Missing           []string
	Extra             []string
	Invalid           []string
	Categories        int
	TotalAchievements int
	Mirror            int
	Duration          time.Duration
}

// OK reports whether every remote file is present and valid locally.
func (r *RefreshReport) OK() bool {
	return len(r.Missing) == 0 && len(r.Invalid) == 0
}

// Refresher downloads category files from prioritized mirrors and rebuilds
// the manifest.
type Refresher struct {
	store       *Store
	fetcher     Fetcher
	listURL     string
	mirrors     []string
	concurrency int
	log         logrus.FieldLogger
}

func NewRefresher(store *Store, opts RefreshOptions) *Refresher {
	r := &Refresher{
		store:       store,
		fetcher:     opts.Fetcher,
		listURL:     opts.ListURL,
		mirrors:     opts.Mirrors,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
	}
	if r.concurrency < 1 {
		r.concurrency = 8
	}
	if r.log == nil {
		r.log = store.log
	}
	return r
}

type downloadConfig struct {
	LastSuccessSourceIndex int `json:"lastSuccessSourceIndex"`
}

// Refresh brings the local category files in line with the remote list.
// With force, every local category file is deleted first. Individual file
// failures only show up in the report.
func (r *Refresher) Refresh(ctx context.Context, force bool) (*RefreshReport, error) {
	started := time.Now()
	report := &RefreshReport{}

	if err := os.MkdirAll(r.store.FileDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create category dir: %w", err)
	}

	remote, err := r.listRemote(ctx)
	if err != nil {
		r.log.WithError(err).Warn("remote file list unavailable, using built-in list")
		remote = slices.Clone(FallbackFiles)
		report.UsedFallback = true
	}
	report.Remote = remote

	if force {
		n, err := r.deleteLocal()
		if err != nil {
			return nil, fmt.Errorf("delete local files: %w", err)
		}
		report.Deleted = n
		r.log.WithField("count", n).Info("deleted local category files")
	}

	state := &downloadState{mirror: r.readMirrorIndex()}

	var todo []string
	for _, name := range remote {
		if r.localValid(name) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		todo = append(todo, name)
	}

	if err := r.downloadAll(ctx, todo, state); err != nil {
		return nil, err
	}

	missing, extra, invalid := r.verify(remote)
	if retry := append(slices.Clone(missing), invalid...); len(retry) > 0 {
		r.log.WithField("count", len(retry)).Info("redownloading missing and invalid files")
		state.failed = nil
		if err := r.downloadAll(ctx, retry, state); err != nil {
			return nil, err
		}
		missing, extra, invalid = r.verify(remote)
	}

	report.Downloaded = state.downloaded
	report.Failed = state.failed
	report.Missing = missing
	report.Extra = extra
	report.Invalid = invalid
	report.Mirror = state.mirror

	if err := fsutil.WriteJSON(filepath.Join(r.store.Dir(), DownloadConfigFile), downloadConfig{LastSuccessSourceIndex: state.mirror}); err != nil {
		r.log.WithError(err).Warn("could not persist mirror preference")
	}

	m := r.buildManifest(remote, extra)
	report.Categories = len(m.Categories)
	report.TotalAchievements = m.TotalAchievements
	if len(m.Categories) == 0 {
		return report, ErrNothingDownloaded
	}
	if err := fsutil.WriteJSON(r.store.ManifestPath(), m); err != nil {
		return report, fmt.Errorf("write manifest: %w", err)
	}

	r.store.Invalidate()
	report.Duration = time.Since(started)

	r.log.WithFields(logrus.Fields{
		"remote":     len(remote),
		"downloaded": len(report.Downloaded),
		"skipped":    len(report.Skipped),
		"failed":     len(report.Failed),
		"missing":    len(report.Missing),
		"extra":      len(report.Extra),
		"invalid":    len(report.Invalid),
		"total":      report.TotalAchievements,
	}).Info("catalog refreshed")

	return report, nil
}

// listRemote returns the .json file names published upstream.
func (r *Refresher) listRemote(ctx context.Context) ([]string, error) {
	if r.listURL == "" {
		return nil, errors.New("no list URL configured")
	}
	body, err := r.fetcher.Get(ctx, r.listURL)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("file list is not valid JSON")
	}

	var names []string
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		name := v.Get("name").String()
		if v.Get("type").String() != "file" || !strings.HasSuffix(name, ".json") {
			return true
		}
		if !plainFileName(name) {
			r.log.WithField("file", name).Warn("ignoring listed file with a path")
			return true
		}
		names = append(names, name)
		return true
	})
	if len(names) == 0 {
		return nil, errors.New("file list is empty")
	}
	return names, nil
}

// plainFileName rejects names that would resolve outside the category dir.
func plainFileName(name string) bool {
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`) && name != ".." && name != "."
}

func (r *Refresher) deleteLocal() (int, error) {
	local, err := r.localFiles()
	if err != nil {
		return 0, err
	}
	for _, name := range local {
		if err := os.Remove(filepath.Join(r.store.FileDir(), name)); err != nil {
			return 0, err
		}
	}
	return len(local), nil
}

func (r *Refresher) localFiles() ([]string, error) {
	entries, err := os.ReadDir(r.store.FileDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Refresher) localValid(name string) bool {
	raw, err := os.ReadFile(filepath.Join(r.store.FileDir(), name))
	if err != nil {
		return false
	}
	return ValidateCategory(raw) == nil
}

func (r *Refresher) readMirrorIndex() int {
	raw, err := os.ReadFile(filepath.Join(r.store.Dir(), DownloadConfigFile))
	if err != nil {
		return 0
	}
	var cfg downloadConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0
	}
	if cfg.LastSuccessSourceIndex < 0 || cfg.LastSuccessSourceIndex >= len(r.mirrors) {
		return 0
	}
	return cfg.LastSuccessSourceIndex
}

// downloadState collects per-file outcomes across batches.
type downloadState struct {
	mu         sync.Mutex
	mirror     int
	downloaded []string
	failed     []string
}

func (s *downloadState) preferred() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror
}

func (s *downloadState) succeed(name string, mirror int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = mirror
	if !slices.Contains(s.downloaded, name) {
		s.downloaded = append(s.downloaded, name)
	}
}

func (s *downloadState) fail(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, name)
}

// downloadAll fetches names in batches of r.concurrency. Each batch runs to
// completion before the next starts.
func (r *Refresher) downloadAll(ctx context.Context, names []string, state *downloadState) error {
	for start := 0; start < len(names); start += r.concurrency {
		end := min(start+r.concurrency, len(names))

		var g errgroup.Group
		for _, name := range names[start:end] {
			g.Go(func() error {
				r.downloadOne(ctx, name, state)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("refresh interrupted: %w", err)
		}
	}
	return nil
}

func (r *Refresher) downloadOne(ctx context.Context, name string, state *downloadState) {
	log := r.log.WithField("file", name)

	body, idx, err := r.fetcher.GetMirrored(ctx, r.mirrors, state.preferred(), name)
	if err != nil {
		log.WithError(err).Warn("download failed")
		state.fail(name)
		return
	}
	if err := ValidateCategory(body); err != nil {
		log.WithError(err).WithField("mirror", idx).Warn("downloaded file failed validation")
		state.fail(name)
		return
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(r.store.FileDir(), name), body, 0o644); err != nil {
		log.WithError(err).Warn("write failed")
		state.fail(name)
		return
	}
	log.WithField("mirror", idx).Debug("downloaded")
	state.succeed(name, idx)
}

// verify compares the local dir with the remote list.
func (r *Refresher) verify(remote []string) (missing, extra, invalid []string) {
	local, err := r.localFiles()
	if err != nil {
		r.log.WithError(err).Warn("could not list local category files")
	}
	want := make(map[string]bool, len(remote))
	for _, name := range remote {
		want[name] = true
	}
	have := make(map[string]bool, len(local))
	for _, name := range local {
		have[name] = true
		if !want[name] {
			extra = append(extra, name)
		}
	}
	for _, name := range remote {
		switch {
		case !have[name]:
			missing = append(missing, name)
		case !r.localValid(name):
			invalid = append(invalid, name)
		}
	}
	return missing, extra, invalid
}

// buildManifest lists every valid local file, remote order first, then any
// extra local files alphabetically.
func (r *Refresher) buildManifest(remote, extra []string) Manifest {
	m := Manifest{LastUpdated: time.Now().UTC().Format(time.RFC3339)}

	for _, name := range append(slices.Clone(remote), extra...) {
		raw, err := os.ReadFile(filepath.Join(r.store.FileDir(), name))
		if err != nil {
			continue
		}
		if ValidateCategory(raw) != nil {
			continue
		}
		doc := gjson.ParseBytes(raw)
		count := int(doc.Get("achievements.#").Int())
		display := doc.Get("name").String()
		if display == "" {
			display = categoryName(name)
		}
		m.Categories = append(m.Categories, CategoryInfo{
			Name:             display,
			FileName:         name,
			AchievementCount: count,
		})
		m.TotalAchievements += count
	}
	return m
}
