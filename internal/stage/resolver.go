// Package stage resolves staged achievement chains, where each stage points
// back at its predecessor through PreStage.
package stage

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mCat-0/mCat-ac/internal/catalog"
)

// Catalog is the lookup surface the resolver needs.
type Catalog interface {
	GetByID(id int) (catalog.Achievement, bool)
	FindByName(name string) []catalog.Achievement
	All() ([]catalog.Achievement, error)
}

type Resolver struct {
	catalog Catalog
}

func NewResolver(c Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// StageNumber counts PreStage hops back to the start of the chain. A hop to
// an ID the catalog does not know still counts, then the walk stops.
func (r *Resolver) StageNumber(a catalog.Achievement) int {
	stage := 1
	seen := map[int]bool{a.ID: true}
	cur := a
	for cur.HasPreStage() {
		stage++
		if seen[cur.PreStage] {
			break
		}
		seen[cur.PreStage] = true

		prev, ok := r.catalog.GetByID(cur.PreStage)
		if !ok {
			break
		}
		cur = prev
	}
	return stage
}

// AllRequiredIDs returns every ancestor of id, earliest stage first. An
// unresolvable PreStage is included and ends the chain.
func (r *Resolver) AllRequiredIDs(id int) []int {
	var ids []int
	seen := map[int]bool{id: true}
	cur := id
	for {
		a, ok := r.catalog.GetByID(cur)
		if !ok || !a.HasPreStage() || seen[a.PreStage] {
			break
		}
		ids = append(ids, a.PreStage)
		seen[a.PreStage] = true
		cur = a.PreStage
	}
	slices.Reverse(ids)
	return ids
}

type staged struct {
	a     catalog.Achievement
	stage int
}

func (r *Resolver) withStages(list []catalog.Achievement) []staged {
	out := make([]staged, len(list))
	for i, a := range list {
		out[i] = staged{a: a, stage: r.StageNumber(a)}
	}
	return out
}

// FindByStage picks the achievement named like name at targetStage. Without
// an exact match it takes the highest stage not above the target, else the
// lowest stage.
func (r *Resolver) FindByStage(name string, targetStage int) (catalog.Achievement, bool) {
	matches := r.withStages(r.catalog.FindByName(name))
	if len(matches) == 0 {
		return catalog.Achievement{}, false
	}

	for _, m := range matches {
		if m.stage == targetStage {
			return m.a, true
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].stage < matches[j].stage })
	for i := len(matches) - 1; i >= 0; i-- {
		if matches[i].stage <= targetStage {
			return matches[i].a, true
		}
	}
	return matches[0].a, true
}

// NextStageFor picks the stage after the highest one in completed, or the
// highest existing stage when the chain is already finished.
func (r *Resolver) NextStageFor(name string, completed map[int]bool) (catalog.Achievement, bool) {
	matches := r.withStages(r.catalog.FindByName(name))
	if len(matches) == 0 {
		return catalog.Achievement{}, false
	}

	highest := 0
	for _, m := range matches {
		if completed[m.a.ID] && m.stage > highest {
			highest = m.stage
		}
	}
	for _, m := range matches {
		if m.stage == highest+1 {
			return m.a, true
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].stage > matches[j].stage })
	return matches[0].a, true
}

// Label returns "stage N" for staged achievements and "" otherwise. A chain
// start is "stage 1" only when a later stage points at it.
func (r *Resolver) Label(a catalog.Achievement) string {
	if a.HasPreStage() {
		if n := r.StageNumber(a); n > 1 {
			return fmt.Sprintf("stage %d", n)
		}
		return ""
	}
	all, err := r.catalog.All()
	if err != nil {
		return ""
	}
	for _, other := range all {
		if other.PreStage == a.ID {
			return "stage 1"
		}
	}
	return ""
}

var (
	numericToken = regexp.MustCompile(`^\d+$`)
	nameStage    = regexp.MustCompile(`^(.+?)(\d+)$`)
)

// Resolution is the outcome of resolving one user token.
type Resolution struct {
	Target catalog.Achievement
	// Required lists the ancestors to record with Target, earliest first.
	Required []int
}

// IDs returns Required followed by the target ID.
func (res Resolution) IDs() []int {
	return append(slices.Clone(res.Required), res.Target.ID)
}

// ResolveToken maps a user token to an achievement: a numeric token is an
// ID, "Name3" asks for stage 3 of Name, and a bare name picks the next stage
// the user has not completed.
func (r *Resolver) ResolveToken(token string, completed map[int]bool) (Resolution, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Resolution{}, false
	}

	var (
		target catalog.Achievement
		ok     bool
	)
	if numericToken.MatchString(token) {
		id, _ := strconv.Atoi(token)
		target, ok = r.catalog.GetByID(id)
	} else if m := nameStage.FindStringSubmatch(token); m != nil {
		n, _ := strconv.Atoi(m[2])
		target, ok = r.FindByStage(strings.TrimSpace(m[1]), n)
	} else if matches := r.catalog.FindByName(token); len(matches) > 1 {
		target, ok = r.NextStageFor(token, completed)
	} else if len(matches) == 1 {
		target, ok = matches[0], true
	}
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Target: target, Required: r.AllRequiredIDs(target.ID)}, true
}
