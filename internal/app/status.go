package app

import (
	"context"
	"os"
	"time"

	"github.com/mCat-0/mCat-ac/internal/store"
)

// Status is a diagnostic view of the process and, optionally, one user.
type Status struct {
	ManifestPresent bool                `json:"manifestPresent"`
	CatalogLoaded   bool                `json:"catalogLoaded"`
	CatalogError    string              `json:"catalogError,omitempty"`
	CachedAt        time.Time           `json:"cachedAt"`
	Achievements    int                 `json:"achievements"`
	Categories      int                 `json:"categories"`
	MissingFiles    []string            `json:"missingFiles,omitempty"`
	InvalidFiles    []string            `json:"invalidFiles,omitempty"`
	LastRefresh     *store.RefreshEvent `json:"lastRefresh,omitempty"`

	User *UserStatus `json:"user,omitempty"`
}

type UserStatus struct {
	UserID     string              `json:"userId"`
	HasRecord  bool                `json:"hasRecord"`
	Completed  int                 `json:"completed"`
	LastUpdate string              `json:"lastUpdate,omitempty"`
	Awaiting   bool                `json:"awaiting"`
	Deadline   time.Time           `json:"deadline,omitempty"`
	Recent     []store.ImportEvent `json:"recent,omitempty"`
}

// Status reports catalog health and, when userID is set, that user's record.
func (a *App) Status(ctx context.Context, userID string) (*Status, error) {
	st := &Status{}

	_, err := os.Stat(a.catalog.ManifestPath())
	st.ManifestPresent = err == nil

	snap, err := a.catalog.Snapshot()
	if err != nil {
		st.CatalogError = err.Error()
	} else {
		st.CatalogLoaded = true
		st.CachedAt = a.catalog.CachedAt()
		st.Achievements = len(snap.Achievements)
		st.Categories = len(snap.Manifest.Categories)
		st.MissingFiles = snap.Report.Missing
		st.InvalidFiles = snap.Report.Invalid
	}

	if a.events != nil {
		last, err := a.events.LatestRefresh(ctx)
		if err != nil {
			a.log.WithError(err).Warn("could not read refresh history")
		}
		st.LastRefresh = last
	}

	if userID == "" {
		return st, nil
	}

	rec, err := a.progress.Record(userID)
	if err != nil {
		return nil, err
	}
	us := &UserStatus{UserID: userID, HasRecord: rec != nil}
	if rec != nil {
		for _, id := range rec.CompletedIDs {
			if id != a.progress.Sentinel() {
				us.Completed++
			}
		}
		us.LastUpdate = rec.LastUpdate
	}
	if w, ok := a.awaiting.State(userID).(AwaitingShareCode); ok {
		us.Awaiting = true
		us.Deadline = w.Deadline
	}
	if a.events != nil {
		recent, err := a.History(ctx, userID, 5)
		if err != nil {
			a.log.WithError(err).Warn("could not read import history")
		}
		us.Recent = recent
	}
	st.User = us
	return st, nil
}
