package catalog

import (
	"encoding/json"
	"strings"
)

// Achievement is one catalog entry.
type Achievement struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Hidden      bool   `json:"hidden,omitempty"`
	Reward      int    `json:"reward"`
	Category    string `json:"category,omitempty"`
	// PreStage is the ID of the previous stage in a chain; 0 means none.
	PreStage int `json:"preStage,omitempty"`
}

// UnmarshalJSON accepts both "description" and the upstream "desc" key, and
// tolerates a null preStage.
func (a *Achievement) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Desc        string `json:"desc"`
		Hidden      bool   `json:"hidden"`
		Reward      int    `json:"reward"`
		Category    string `json:"category"`
		PreStage    *int   `json:"preStage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Achievement{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Hidden:      raw.Hidden,
		Reward:      raw.Reward,
		Category:    raw.Category,
	}
	if a.Description == "" {
		a.Description = raw.Desc
	}
	if raw.PreStage != nil {
		a.PreStage = *raw.PreStage
	}
	return nil
}

// HasPreStage reports whether a names an earlier stage.
func (a Achievement) HasPreStage() bool {
	return a.PreStage > 0
}

// CategoryInfo is one manifest row.
type CategoryInfo struct {
	Name             string `json:"name"`
	FileName         string `json:"fileName"`
	AchievementCount int    `json:"achievementCount"`
}

// Manifest lists the category files that make up the catalog.
type Manifest struct {
	Categories        []CategoryInfo `json:"categories"`
	LastUpdated       string         `json:"lastUpdated"`
	TotalAchievements int            `json:"totalAchievements"`
}

// CategoryFile is the on-disk shape of a category.
type CategoryFile struct {
	Name         string        `json:"name"`
	Achievements []Achievement `json:"achievements"`
}

// categoryName derives a display name from a category file name.
func categoryName(fileName string) string {
	return strings.TrimSuffix(fileName, ".json")
}
