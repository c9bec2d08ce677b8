// Package render turns a reconcile result into paged terminal output.
package render

import (
	"fmt"
	"strings"

	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/reconcile"
)

const DefaultPageSize = 20

// Paginate splits items into pages of pageSize. A non-positive size uses
// DefaultPageSize. An empty input yields no pages.
func Paginate(items []catalog.Achievement, pageSize int) [][]catalog.Achievement {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var pages [][]catalog.Achievement
	for start := 0; start < len(items); start += pageSize {
		pages = append(pages, items[start:min(start+pageSize, len(items))])
	}
	return pages
}

// Labeler returns a short tag for an achievement, such as its stage.
type Labeler func(catalog.Achievement) string

// Text renders one 1-based page of res. Out-of-range pages clamp to the
// nearest valid one.
func Text(res *reconcile.Result, page, pageSize int, label Labeler) string {
	var b strings.Builder

	b.WriteString(Title.Render(fmt.Sprintf("Achievements for %s", res.UserID)))
	b.WriteString("\n")
	b.WriteString(Subtitle.Render(fmt.Sprintf("%d / %d completed (%.1f%%)", res.CompletedCount, res.Total, res.Percent())))
	b.WriteString("\n")

	if len(res.IncompleteAchievements) == 0 {
		b.WriteString(Good.Render("Everything is complete."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(Body.Render(fmt.Sprintf("%d remaining, ", len(res.IncompleteAchievements))))
	b.WriteString(Reward.Render(fmt.Sprintf("%d primogems", res.TotalReward)))
	b.WriteString(Body.Render(" left to earn"))
	b.WriteString("\n\n")

	for _, c := range res.Categories {
		b.WriteString(Hint.Render(fmt.Sprintf("  %-28s %4d  %5d", c.Name, c.Count, c.Reward)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	pages := Paginate(res.IncompleteAchievements, pageSize)
	page = max(1, min(page, len(pages)))

	b.WriteString(fmt.Sprintf("%-8s  %-30s  %-20s  %s\n", "ID", "NAME", "CATEGORY", "REWARD"))
	b.WriteString(strings.Repeat("─", 72) + "\n")
	for _, a := range pages[page-1] {
		name := a.Name
		if label != nil {
			if l := label(a); l != "" {
				name += " (" + l + ")"
			}
		}
		if a.Hidden {
			name += " *"
		}
		b.WriteString(fmt.Sprintf("%-8d  %-30s  %-20s  %d\n", a.ID, truncate(name, 30), truncate(a.Category, 20), a.Reward))
	}
	b.WriteString("\n")
	b.WriteString(Hint.Render(fmt.Sprintf("page %d of %d", page, len(pages))))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
