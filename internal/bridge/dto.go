package bridge

import (
	"time"

	"github.com/mCat-0/mCat-ac/internal/app"
	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/reconcile"
	"github.com/mCat-0/mCat-ac/internal/render"
)

type achievementJSON struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Reward   int    `json:"reward"`
	Hidden   bool   `json:"hidden,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

func toAchievementJSON(a catalog.Achievement, label string) achievementJSON {
	return achievementJSON{
		ID:       a.ID,
		Name:     a.Name,
		Category: a.Category,
		Reward:   a.Reward,
		Hidden:   a.Hidden,
		Stage:    label,
	}
}

type notFoundItemJSON struct {
	Token       string   `json:"token"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func notFoundJSON(items []app.NotFoundItem) []notFoundItemJSON {
	out := make([]notFoundItemJSON, len(items))
	for i, it := range items {
		out[i] = notFoundItemJSON{Token: it.Token, Suggestions: it.Suggestions}
	}
	return out
}

type recordedJSON struct {
	Token       string          `json:"token"`
	Achievement achievementJSON `json:"achievement"`
	Required    int             `json:"required"`
}

type recordResponse struct {
	Recorded []recordedJSON     `json:"recorded"`
	NotFound []notFoundItemJSON `json:"notFound,omitempty"`
	Added    int                `json:"added"`
	Total    int                `json:"total"`
}

func recordJSON(res *app.RecordResult) recordResponse {
	out := recordResponse{
		NotFound: notFoundJSON(res.NotFound),
		Added:    res.Merge.Added,
		Total:    res.Merge.Total,
	}
	for _, it := range res.Recorded {
		out.Recorded = append(out.Recorded, recordedJSON{
			Token:       it.Token,
			Achievement: toAchievementJSON(it.Achievement, it.Label),
			Required:    it.Required,
		})
	}
	return out
}

type importResponse struct {
	BatchID  string `json:"batchId"`
	Source   string `json:"source"`
	Strategy string `json:"strategy"`
	Found    int    `json:"found"`
	Added    int    `json:"added"`
	Total    int    `json:"total"`
}

func importJSON(res *app.ImportResult) importResponse {
	return importResponse{
		BatchID:  res.BatchID,
		Source:   res.Source,
		Strategy: res.Strategy,
		Found:    res.Found,
		Added:    res.Added,
		Total:    res.Total,
	}
}

type categoryJSON struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Reward int    `json:"reward"`
}

type progressResponse struct {
	UserID         string            `json:"userId"`
	CompletedCount int               `json:"completedCount"`
	Total          int               `json:"total"`
	Percent        float64           `json:"percent"`
	Remaining      int               `json:"remaining"`
	TotalReward    int               `json:"totalReward"`
	Categories     []categoryJSON    `json:"categories"`
	Page           int               `json:"page"`
	Pages          int               `json:"pages"`
	Size           int               `json:"size"`
	Items          []achievementJSON `json:"items"`
	CheckedAt      time.Time         `json:"checkedAt"`
}

// progressJSON renders one 1-based page; pages past the end are empty.
func progressJSON(res *reconcile.Result, page, size int, label render.Labeler) progressResponse {
	pages := render.Paginate(res.IncompleteAchievements, size)
	out := progressResponse{
		UserID:         res.UserID,
		CompletedCount: res.CompletedCount,
		Total:          res.Total,
		Percent:        res.Percent(),
		Remaining:      len(res.IncompleteAchievements),
		TotalReward:    res.TotalReward,
		Categories:     []categoryJSON{},
		Page:           page,
		Pages:          len(pages),
		Size:           size,
		Items:          []achievementJSON{},
		CheckedAt:      res.CheckedAt,
	}
	for _, c := range res.Categories {
		out.Categories = append(out.Categories, categoryJSON{Name: c.Name, Count: c.Count, Reward: c.Reward})
	}
	if page <= len(pages) {
		for _, a := range pages[page-1] {
			out.Items = append(out.Items, toAchievementJSON(a, label(a)))
		}
	}
	return out
}

type refreshResponse struct {
	OK                bool     `json:"ok"`
	UsedFallback      bool     `json:"usedFallback"`
	Remote            int      `json:"remote"`
	Deleted           int      `json:"deleted"`
	Downloaded        []string `json:"downloaded"`
	Skipped           []string `json:"skipped"`
	Failed            []string `json:"failed"`
	Missing           []string `json:"missing"`
	Extra             []string `json:"extra"`
	Invalid           []string `json:"invalid"`
	Categories        int      `json:"categories"`
	TotalAchievements int      `json:"totalAchievements"`
	DurationMs        int64    `json:"durationMs"`
}

func refreshJSON(r *catalog.RefreshReport) refreshResponse {
	return refreshResponse{
		OK:                r.OK(),
		UsedFallback:      r.UsedFallback,
		Remote:            len(r.Remote),
		Deleted:           r.Deleted,
		Downloaded:        r.Downloaded,
		Skipped:           r.Skipped,
		Failed:            r.Failed,
		Missing:           r.Missing,
		Extra:             r.Extra,
		Invalid:           r.Invalid,
		Categories:        r.Categories,
		TotalAchievements: r.TotalAchievements,
		DurationMs:        r.Duration.Milliseconds(),
	}
}
