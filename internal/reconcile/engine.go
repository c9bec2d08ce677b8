package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mCat-0/mCat-ac/internal/catalog"
)

var (
	// ErrNoCatalog means there is nothing to compare against until the
	// catalog is refreshed. Callers must not retry automatically.
	ErrNoCatalog = errors.New("no achievement catalog; refresh it first")
	// ErrCatalogFormat aliases the catalog's structural error.
	ErrCatalogFormat = catalog.ErrCatalogFormat
)

// CatalogSource provides the full achievement list.
type CatalogSource interface {
	All() ([]catalog.Achievement, error)
}

// ProgressSource provides a user's completed IDs, sentinel excluded.
type ProgressSource interface {
	Completed(userID string) (map[int]bool, error)
}

// CategoryStat aggregates what is left in one category.
type CategoryStat struct {
	Name   string
	Count  int
	Reward int
}

// Result is the full diff for one user.
type Result struct {
	UserID                 string
	CompletedCount         int
	IncompleteAchievements []catalog.Achievement
	TotalReward            int
	// Total is the catalog size without the sentinel.
	Total int
	// UnknownCompleted counts stored IDs the catalog does not contain.
	UnknownCompleted int
	Categories       []CategoryStat
	CheckedAt        time.Time
}

// Percent is the share of the catalog the user has completed.
func (r *Result) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.CompletedCount) * 100 / float64(r.Total)
}

type Engine struct {
	catalog  CatalogSource
	progress ProgressSource
	sentinel int
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewEngine(c CatalogSource, p ProgressSource, sentinel int, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{catalog: c, progress: p, sentinel: sentinel, log: log, now: time.Now}
}

// Compare diffs the user's completed set against the catalog.
// CompletedCount + len(IncompleteAchievements) == Total always holds.
func (e *Engine) Compare(userID string) (*Result, error) {
	completed, err := e.progress.Completed(userID)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	all, err := e.catalog.All()
	switch {
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		return nil, fmt.Errorf("%w: %w", ErrNoCatalog, err)
	case err != nil:
		return nil, err
	}

	started := e.now()
	res := &Result{UserID: userID, CheckedAt: started}
	inCatalog := make(map[int]bool, len(all))
	stats := map[string]*CategoryStat{}
	var order []string

	for _, a := range all {
		if a.ID == e.sentinel {
			continue
		}
		inCatalog[a.ID] = true
		res.Total++

		if completed[a.ID] {
			res.CompletedCount++
			continue
		}
		res.IncompleteAchievements = append(res.IncompleteAchievements, a)
		res.TotalReward += a.Reward

		st, ok := stats[a.Category]
		if !ok {
			st = &CategoryStat{Name: a.Category}
			stats[a.Category] = st
			order = append(order, a.Category)
		}
		st.Count++
		st.Reward += a.Reward
	}

	for id := range completed {
		if !inCatalog[id] && id != e.sentinel {
			res.UnknownCompleted++
		}
	}

	for _, name := range order {
		res.Categories = append(res.Categories, *stats[name])
	}
	sort.SliceStable(res.Categories, func(i, j int) bool {
		return res.Categories[i].Count > res.Categories[j].Count
	})

	e.log.WithFields(logrus.Fields{
		"user_id":    userID,
		"completed":  res.CompletedCount,
		"incomplete": len(res.IncompleteAchievements),
		"reward":     res.TotalReward,
		"unknown":    res.UnknownCompleted,
	}).Info("comparison done")

	return res, nil
}
