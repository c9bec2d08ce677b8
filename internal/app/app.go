// Package app wires the catalog, progress, extraction and reconciliation
// components into the operations the CLI and HTTP bridge expose.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/config"
	"github.com/mCat-0/mCat-ac/internal/extract"
	"github.com/mCat-0/mCat-ac/internal/fetch"
	"github.com/mCat-0/mCat-ac/internal/metrics"
	"github.com/mCat-0/mCat-ac/internal/progress"
	"github.com/mCat-0/mCat-ac/internal/reconcile"
	"github.com/mCat-0/mCat-ac/internal/sharecode"
	"github.com/mCat-0/mCat-ac/internal/stage"
	"github.com/mCat-0/mCat-ac/internal/store"
)

// Import sources recorded in the event log.
const (
	SourceManual    = "manual"
	SourceFile      = "file"
	SourceShareCode = "sharecode"
)

// Options carries the optional collaborators of an App.
type Options struct {
	Logger logrus.FieldLogger
	// Events may be nil, which disables the event log.
	Events  store.EventRepo
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// App is the per-process context. It is safe for concurrent use.
type App struct {
	cfg       *config.Config
	log       logrus.FieldLogger
	now       func() time.Time
	catalog   *catalog.Store
	refresher *catalog.Refresher
	progress  *progress.Store
	resolver  *stage.Resolver
	engine    *reconcile.Engine
	extractor *extract.Extractor
	shares    *sharecode.Client
	files     *fetch.Client
	events    store.EventRepo
	metrics   *metrics.Metrics
	awaiting  *Awaiting

	refreshMu sync.Mutex
}

func New(cfg *config.Config, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cat := catalog.NewStore(catalog.Options{
		Dir:      cfg.CatalogDir(),
		FileDir:  cfg.CategoryDir(),
		CacheTTL: cfg.Catalog.CacheTTL,
		Logger:   log.WithField("component", "catalog"),
		Now:      now,
	})

	downloader := fetch.New(
		fetch.WithTimeout(cfg.Catalog.Timeout),
		fetch.WithRetry(fetch.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			InitialWait: cfg.Retry.InitialWait,
			MaxWait:     cfg.Retry.MaxWait,
			Multiplier:  cfg.Retry.Multiplier,
		}),
		fetch.WithHeader("User-Agent", "mcat-ac"),
	)

	prog := progress.NewStore(cfg.UserDir(), cfg.Achievements.SentinelID, log.WithField("component", "progress"))

	return &App{
		cfg:     cfg,
		log:     log,
		now:     now,
		catalog: cat,
		refresher: catalog.NewRefresher(cat, catalog.RefreshOptions{
			Fetcher:     downloader,
			ListURL:     cfg.Catalog.ListURL,
			Mirrors:     cfg.Catalog.Mirrors,
			Concurrency: cfg.Catalog.Concurrency,
			Logger:      log.WithField("component", "refresh"),
		}),
		progress:  prog,
		resolver:  stage.NewResolver(cat),
		engine:    reconcile.NewEngine(cat, prog, cfg.Achievements.SentinelID, log.WithField("component", "reconcile")),
		extractor: extract.New(log.WithField("component", "extract")),
		shares: sharecode.NewClient(sharecode.Options{
			BaseURL:    cfg.ShareCode.BaseURL,
			Timeout:    cfg.ShareCode.Timeout,
			RatePerSec: cfg.ShareCode.RatePerSec,
		}),
		files:    fetch.New(fetch.WithTimeout(cfg.Catalog.Timeout), fetch.WithRetry(fetch.RetryConfig{MaxAttempts: 1})),
		events:   opts.Events,
		metrics:  opts.Metrics,
		awaiting: NewAwaiting(now),
	}
}

// Catalog exposes the catalog store for read-only callers.
func (a *App) Catalog() *catalog.Store { return a.catalog }

// Resolver exposes stage lookups, e.g. for labelling rendered items.
func (a *App) Resolver() *stage.Resolver { return a.resolver }

// Awaiting exposes the input-state registry.
func (a *App) Awaiting() *Awaiting { return a.awaiting }

// RecordedItem is one token that resolved to an achievement.
type RecordedItem struct {
	Token       string
	Achievement catalog.Achievement
	Label       string
	// Required counts the prerequisites recorded along with it.
	Required int
}

// NotFoundItem is one token that matched nothing.
type NotFoundItem struct {
	Token       string
	Suggestions []string
}

type RecordResult struct {
	Recorded []RecordedItem
	NotFound []NotFoundItem
	Merge    progress.MergeResult
}

// RecordAchievements resolves each whitespace-separated token to an
// achievement and records it with its prerequisites. Tokens that match
// nothing are reported, not recorded. When no token matches, the error is a
// *NotFoundError.
func (a *App) RecordAchievements(ctx context.Context, userID string, tokens []string) (*RecordResult, error) {
	if err := progress.ValidateUserID(userID); err != nil {
		return nil, err
	}
	var fields []string
	for _, t := range tokens {
		fields = append(fields, strings.Fields(t)...)
	}
	if len(fields) == 0 {
		return nil, ErrNoTokens
	}
	if err := a.requireCatalog(); err != nil {
		return nil, err
	}

	completed, err := a.progress.Completed(userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	res := &RecordResult{}
	ids := map[int]bool{}
	for _, tok := range fields {
		r, ok := a.resolver.ResolveToken(tok, completed)
		if !ok {
			res.NotFound = append(res.NotFound, NotFoundItem{Token: tok, Suggestions: a.suggest(tok)})
			continue
		}
		for _, id := range r.IDs() {
			ids[id] = true
			// Later bare-name tokens advance past stages recorded here.
			completed[id] = true
		}
		res.Recorded = append(res.Recorded, RecordedItem{
			Token:       tok,
			Achievement: r.Target,
			Label:       a.resolver.Label(r.Target),
			Required:    len(r.Required),
		})
	}

	if len(res.Recorded) == 0 {
		return res, &NotFoundError{Items: res.NotFound}
	}

	merge, err := a.progress.Merge(userID, ids)
	if err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	res.Merge = merge

	a.recordImport(ctx, store.ImportEventData{
		UserID: userID,
		Source: SourceManual,
		Found:  len(ids),
		Added:  merge.Added,
	})
	return res, nil
}

func (a *App) suggest(token string) []string {
	if numeric(token) {
		return nil
	}
	return a.catalog.Suggest(token, 3)
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// requireCatalog maps an unreadable catalog to reconcile.ErrNoCatalog.
func (a *App) requireCatalog() error {
	_, err := a.catalog.Snapshot()
	switch {
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return fmt.Errorf("%w: %w", reconcile.ErrNoCatalog, err)
	case err != nil:
		return err
	}
	return nil
}

type ImportResult struct {
	BatchID  string
	Source   string
	Strategy string
	Found    int
	Added    int
	Total    int
}

// ImportPayload extracts completed IDs from raw and merges them into the
// user's progress. A successful import ends any pending input state.
func (a *App) ImportPayload(ctx context.Context, userID string, raw []byte, source string) (*ImportResult, error) {
	if err := progress.ValidateUserID(userID); err != nil {
		return nil, err
	}

	ext := a.extractor.Extract(raw)
	if len(ext.IDs) == 0 {
		a.metrics.ObserveImport(source, "", 0)
		return nil, ErrNothingExtracted
	}

	merge, err := a.progress.Merge(userID, ext.IDs)
	if err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	a.awaiting.Clear(userID)

	res := &ImportResult{
		BatchID:  uuid.NewString(),
		Source:   source,
		Strategy: ext.Strategy,
		Found:    len(ext.IDs),
		Added:    merge.Added,
		Total:    merge.Total,
	}
	a.metrics.ObserveImport(source, ext.Strategy, merge.Added)
	a.recordImport(ctx, store.ImportEventData{
		BatchID:  res.BatchID,
		UserID:   userID,
		Source:   source,
		Strategy: ext.Strategy,
		Found:    res.Found,
		Added:    res.Added,
	})

	a.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"source":   source,
		"strategy": ext.Strategy,
		"found":    res.Found,
		"added":    res.Added,
	}).Info("import complete")
	return res, nil
}

// ImportShareCode fetches the export stored under code and imports it.
func (a *App) ImportShareCode(ctx context.Context, userID, code string) (*ImportResult, error) {
	if err := progress.ValidateUserID(userID); err != nil {
		return nil, err
	}
	raw, err := a.shares.Fetch(ctx, code)
	if err != nil {
		a.metrics.ObserveShareCode(shareCodeResult(err))
		return nil, err
	}
	a.metrics.ObserveShareCode("ok")
	return a.ImportPayload(ctx, userID, raw, SourceShareCode)
}

func shareCodeResult(err error) string {
	switch {
	case errors.Is(err, sharecode.ErrInvalidCode):
		return "invalid"
	case errors.Is(err, sharecode.ErrNotFound):
		return "not_found"
	case errors.Is(err, sharecode.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, sharecode.ErrNoPayload):
		return "no_payload"
	default:
		return "network"
	}
}

// ImportFile downloads an uploaded file and imports it.
func (a *App) ImportFile(ctx context.Context, userID, fileURL string) (*ImportResult, error) {
	raw, err := a.files.Get(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return a.ImportPayload(ctx, userID, raw, SourceFile)
}

// StartInput opens the share-code input window for the user.
func (a *App) StartInput(userID string) (time.Time, error) {
	if err := progress.ValidateUserID(userID); err != nil {
		return time.Time{}, err
	}
	return a.awaiting.Start(userID, a.cfg.Input.TTL), nil
}

// Message is one inbound chat message.
type Message struct {
	UserID  string `json:"userId"`
	Text    string `json:"text"`
	FileURL string `json:"fileUrl,omitempty"`
}

type MessageResult struct {
	Handled bool
	Import  *ImportResult
}

// HandleMessage imports from a message when it carries a share URL, or, while
// the user is awaiting input, a file or a bare share code. Any other message
// is left unhandled.
func (a *App) HandleMessage(ctx context.Context, msg Message) (*MessageResult, error) {
	var (
		res *ImportResult
		err error
	)
	switch code, ok := sharecode.FindInText(msg.Text); {
	case ok:
		res, err = a.ImportShareCode(ctx, msg.UserID, code)
	case !a.awaiting.IsAwaiting(msg.UserID):
		return &MessageResult{}, nil
	case msg.FileURL != "":
		res, err = a.ImportFile(ctx, msg.UserID, msg.FileURL)
	case sharecode.Valid(strings.TrimSpace(msg.Text)):
		res, err = a.ImportShareCode(ctx, msg.UserID, strings.TrimSpace(msg.Text))
	default:
		return &MessageResult{}, nil
	}
	if err != nil {
		return &MessageResult{Handled: true}, err
	}
	return &MessageResult{Handled: true, Import: res}, nil
}

// CheckProgress diffs the user's progress against the catalog.
func (a *App) CheckProgress(_ context.Context, userID string) (*reconcile.Result, error) {
	exists, err := a.progress.Exists(userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNothingRecorded
	}

	started := time.Now()
	res, err := a.engine.Compare(userID)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveCompare(time.Since(started))
	return res, nil
}

// ResetProgress clears the user's completed set.
func (a *App) ResetProgress(_ context.Context, userID string) error {
	if err := a.progress.Reset(userID); err != nil {
		return err
	}
	a.awaiting.Clear(userID)
	return nil
}

// RefreshCatalog downloads category files and rebuilds the manifest. Only
// one refresh runs at a time.
func (a *App) RefreshCatalog(ctx context.Context, force bool) (*catalog.RefreshReport, error) {
	if !a.refreshMu.TryLock() {
		return nil, ErrRefreshRunning
	}
	defer a.refreshMu.Unlock()

	// A started refresh runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	started := time.Now()
	report, err := a.refresher.Refresh(ctx, force)

	ev := store.RefreshEventData{Forced: force, Duration: time.Since(started)}
	if report != nil {
		ev.UsedFallback = report.UsedFallback
		ev.Remote = len(report.Remote)
		ev.Downloaded = len(report.Downloaded)
		ev.Skipped = len(report.Skipped)
		ev.Failed = len(report.Failed)
		ev.Missing = len(report.Missing)
		ev.Extra = len(report.Extra)
		ev.Invalid = len(report.Invalid)
		ev.TotalAchievements = report.TotalAchievements
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
		a.metrics.ObserveRefreshError()
	} else {
		a.metrics.ObserveRefresh(report.OK(), ev.Downloaded, ev.Skipped, ev.Failed)
	}
	if a.events != nil {
		if aerr := a.events.AppendRefresh(ctx, ev); aerr != nil {
			a.log.WithError(aerr).Warn("could not record refresh event")
		}
	}
	return report, err
}

// History returns the user's most recent imports, newest first.
func (a *App) History(ctx context.Context, userID string, limit int) ([]store.ImportEvent, error) {
	if a.events == nil {
		return nil, nil
	}
	return a.events.QueryImports(ctx, store.QueryOpts{UserID: userID, Limit: limit})
}

// recordImport appends to the event log. Failures are logged only.
func (a *App) recordImport(ctx context.Context, ev store.ImportEventData) {
	if a.events == nil {
		return
	}
	if ev.BatchID == "" {
		ev.BatchID = uuid.NewString()
	}
	if err := a.events.AppendImport(ctx, ev); err != nil {
		a.log.WithError(err).WithField("user_id", ev.UserID).Warn("could not record import event")
	}
}
